package server

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	moviedomain "github.com/smallbiznis/moviestore/internal/movie/domain"
)

const maxMultipartMemory = 32 << 20

type movieRequest struct {
	Title          *string      `json:"title"`
	Description    *string      `json:"description"`
	Stock          *int         `json:"stock"`
	RentalPrice    *json.Number `json:"rental_price"`
	SalePrice      *json.Number `json:"sale_price"`
	Availability   *bool        `json:"availability"`
	ImageURLs      []string     `json:"image_urls"`
	RemoveImageIDs []string     `json:"remove_image_ids"`
}

type listMoviesQuery struct {
	Title        string `form:"title"`
	Availability string `form:"availability"`
	SortBy       string `form:"sort_by"`
	OrderBy      string `form:"order_by"`
}

func (s *Server) ListMovies(c *gin.Context) {
	var query listMoviesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	availability, err := parseOptionalBool(query.Availability)
	if err != nil {
		AbortWithError(c, newValidationError("availability", "invalid_availability", "availability must be true or false"))
		return
	}

	movies, err := s.movieSvc.List(c.Request.Context(), moviedomain.ListRequest{
		Title:        strings.TrimSpace(query.Title),
		Availability: availability,
		SortBy:       query.SortBy,
		OrderBy:      query.OrderBy,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": movies})
}

func (s *Server) GetMovie(c *gin.Context) {
	movie, err := s.movieSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": movie})
}

func (s *Server) CreateMovie(c *gin.Context) {
	req, closeImages, err := bindMovieRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer closeImages()

	movie, err := s.movieSvc.Create(c.Request.Context(), req.toCreate())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": movie})
}

func (s *Server) ReplaceMovie(c *gin.Context) {
	req, closeImages, err := bindMovieRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer closeImages()

	movie, err := s.movieSvc.Replace(c.Request.Context(), c.Param("id"), req.toCreate())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": movie})
}

func (s *Server) UpdateMovie(c *gin.Context) {
	req, closeImages, err := bindMovieRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer closeImages()

	update := moviedomain.UpdateRequest{
		ID:             c.Param("id"),
		Title:          req.Title,
		Description:    req.Description,
		Stock:          req.Stock,
		RentalPrice:    req.RentalPrice,
		SalePrice:      req.SalePrice,
		Availability:   req.Availability,
		Images:         req.Images,
		ImageURLs:      req.ImageURLs,
		RemoveImageIDs: req.RemoveImageIDs,
	}
	movie, err := s.movieSvc.Update(c.Request.Context(), update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": movie})
}

func (s *Server) DeleteMovie(c *gin.Context) {
	if err := s.movieSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) SetMovieAvailable(c *gin.Context) {
	s.setMovieAvailability(c, true)
}

func (s *Server) SetMovieUnavailable(c *gin.Context) {
	s.setMovieAvailability(c, false)
}

func (s *Server) setMovieAvailability(c *gin.Context, available bool) {
	resp, err := s.movieSvc.SetAvailability(c.Request.Context(), c.Param("id"), available)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) LikeMovie(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}

	resp, err := s.movieSvc.ToggleLike(c.Request.Context(), c.Param("id"), principal.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// boundMovie is the normalized form of a JSON or multipart movie payload.
type boundMovie struct {
	Title          *string
	Description    *string
	Stock          *int
	RentalPrice    *string
	SalePrice      *string
	Availability   *bool
	Images         []moviedomain.ImageUpload
	ImageURLs      []string
	RemoveImageIDs []string
}

func (b boundMovie) toCreate() moviedomain.CreateRequest {
	return moviedomain.CreateRequest{
		Title:        deref(b.Title),
		Description:  deref(b.Description),
		Stock:        b.Stock,
		RentalPrice:  deref(b.RentalPrice),
		SalePrice:    deref(b.SalePrice),
		Availability: b.Availability,
		Images:       b.Images,
		ImageURLs:    b.ImageURLs,
	}
}

func bindMovieRequest(c *gin.Context) (boundMovie, func(), error) {
	noop := func() {}
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		return bindMovieMultipart(c)
	}

	var req movieRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return boundMovie{}, noop, invalidRequestError()
	}
	return boundMovie{
		Title:          req.Title,
		Description:    req.Description,
		Stock:          req.Stock,
		RentalPrice:    numberString(req.RentalPrice),
		SalePrice:      numberString(req.SalePrice),
		Availability:   req.Availability,
		ImageURLs:      req.ImageURLs,
		RemoveImageIDs: req.RemoveImageIDs,
	}, noop, nil
}

func bindMovieMultipart(c *gin.Context) (boundMovie, func(), error) {
	noop := func() {}
	if err := c.Request.ParseMultipartForm(maxMultipartMemory); err != nil {
		return boundMovie{}, noop, invalidRequestError()
	}
	form := c.Request.MultipartForm

	var out boundMovie
	out.Title = formValue(form, "title")
	out.Description = formValue(form, "description")
	out.RentalPrice = formValue(form, "rental_price")
	out.SalePrice = formValue(form, "sale_price")
	out.ImageURLs = form.Value["image_urls"]
	out.RemoveImageIDs = form.Value["remove_image_ids"]

	if raw := formValue(form, "stock"); raw != nil {
		stock, err := parseOptionalInt(*raw)
		if err != nil {
			return boundMovie{}, noop, moviedomain.ErrInvalidStock
		}
		out.Stock = stock
	}
	if raw := formValue(form, "availability"); raw != nil {
		availability, err := parseOptionalBool(*raw)
		if err != nil {
			return boundMovie{}, noop, newValidationError("availability", "invalid_availability", "availability must be true or false")
		}
		out.Availability = availability
	}

	opened := make([]io.Closer, 0, len(form.File["images"]))
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	for _, header := range form.File["images"] {
		file, err := header.Open()
		if err != nil {
			closeAll()
			return boundMovie{}, noop, moviedomain.ErrInvalidImage
		}
		opened = append(opened, file)
		out.Images = append(out.Images, moviedomain.ImageUpload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
		})
	}
	return out, closeAll, nil
}

func formValue(form *multipart.Form, key string) *string {
	values, ok := form.Value[key]
	if !ok || len(values) == 0 {
		return nil
	}
	value := values[0]
	return &value
}

func numberString(n *json.Number) *string {
	if n == nil {
		return nil
	}
	value := n.String()
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
