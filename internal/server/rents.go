package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/moviestore/internal/pricing"
	rentdomain "github.com/smallbiznis/moviestore/internal/rent/domain"
)

type rentItRequest struct {
	Quantity json.Number `json:"quantity"`
	DueDate  string      `json:"due_date"`
}

type createRentRequest struct {
	Movie    string      `json:"movie"`
	Quantity json.Number `json:"quantity"`
	DueDate  string      `json:"due_date"`
}

type updateRentRequest struct {
	DueDate *string `json:"due_date"`
}

type listRentsQuery struct {
	Status   string `form:"status"`
	Returned string `form:"returned"`
	Movie    string `form:"movie"`
}

// RentIt handles POST /api/movies/:id/rent_it.
func (s *Server) RentIt(c *gin.Context) {
	var req rentItRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	s.createRent(c, c.Param("id"), req.Quantity, req.DueDate)
}

// CreateRent handles POST /api/rents, which names the movie in the body.
func (s *Server) CreateRent(c *gin.Context) {
	var req createRentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Movie) == "" {
		AbortWithError(c, newValidationError("movie", "required", "movie is required"))
		return
	}
	s.createRent(c, req.Movie, req.Quantity, req.DueDate)
}

func (s *Server) createRent(c *gin.Context, movieID string, rawQuantity json.Number, rawDueDate string) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	quantity, err := parseQuantity(rawQuantity)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	dueDate, err := parseDueDate(rawDueDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.rentSvc.Create(c.Request.Context(), principal, rentdomain.CreateRequest{
		MovieID:  movieID,
		Quantity: quantity,
		DueDate:  dueDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) ListRents(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	var query listRentsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	returned, err := parseOptionalBool(query.Returned)
	if err != nil {
		AbortWithError(c, newValidationError("returned", "invalid_returned", "returned must be true or false"))
		return
	}

	rents, err := s.rentSvc.List(c.Request.Context(), principal, rentdomain.ListRequest{
		Status:   strings.TrimSpace(query.Status),
		Returned: returned,
		MovieID:  strings.TrimSpace(query.Movie),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rents})
}

func (s *Server) GetRent(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}

	rent, err := s.rentSvc.Get(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rent})
}

func (s *Server) UpdateRent(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	var req updateRentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	update := rentdomain.UpdateRequest{ID: c.Param("id")}
	if req.DueDate != nil {
		dueDate, err := parseDueDate(*req.DueDate)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		update.DueDate = &dueDate
	}

	rent, err := s.rentSvc.Update(c.Request.Context(), principal, update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rent})
}

// ReturnMovie answers 200 for a punctual return and 201 when an extra charge was generated.
func (s *Server) ReturnMovie(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}

	resp, err := s.rentSvc.Return(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if resp.Outcome == rentdomain.OutcomeExtraChargeGenerated {
		status = http.StatusCreated
	}
	c.JSON(status, resp)
}

func parseQuantity(raw json.Number) (int, error) {
	value := strings.TrimSpace(raw.String())
	if value == "" {
		return 0, nil
	}
	quantity, err := strconv.Atoi(value)
	if err != nil {
		return 0, pricing.Reject(&pricing.Rejection{
			Field:   pricing.FieldQuantity,
			Code:    pricing.QuantityTooLow,
			Message: "quantity must be a whole number",
		})
	}
	return quantity, nil
}
