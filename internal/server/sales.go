package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	saledomain "github.com/smallbiznis/moviestore/internal/sale/domain"
)

type buyItRequest struct {
	Quantity json.Number `json:"quantity"`
}

type listSalesQuery struct {
	Movie string `form:"movie"`
}

// BuyIt handles PATCH /api/movies/:id/buy_it.
func (s *Server) BuyIt(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	var req buyItRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	quantity, err := parseQuantity(req.Quantity)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	sale, err := s.saleSvc.Create(c.Request.Context(), principal, saledomain.CreateRequest{
		MovieID:  c.Param("id"),
		Quantity: quantity,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Movie purchased.", "data": sale})
}

func (s *Server) ListSales(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	var query listSalesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sales, err := s.saleSvc.List(c.Request.Context(), principal, saledomain.ListRequest{
		MovieID: strings.TrimSpace(query.Movie),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sales})
}

func (s *Server) GetSale(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}

	sale, err := s.saleSvc.Get(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sale})
}

func (s *Server) GetSaleReceipt(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}

	receipt, err := s.saleSvc.Receipt(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	body, err := io.ReadAll(receipt.Body)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", receipt.Filename))
	c.Data(http.StatusOK, "application/pdf", body)
}
