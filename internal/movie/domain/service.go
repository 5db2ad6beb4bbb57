package domain

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	MessageAvailable   = "Movie was changed to available."
	MessageUnavailable = "Movie was changed to unavailable."
)

type Service interface {
	List(ctx context.Context, req ListRequest) ([]Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Replace(ctx context.Context, id string, req CreateRequest) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Delete(ctx context.Context, id string) error
	SetAvailability(ctx context.Context, id string, available bool) (*AvailabilityResponse, error)
	ToggleLike(ctx context.Context, id string, userID snowflake.ID) (*LikeResponse, error)
}

type ListRequest struct {
	Title        string
	Availability *bool
	SortBy       string
	OrderBy      string
}

// ImageUpload is an image file received with a create or update request.
type ImageUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type CreateRequest struct {
	Title        string
	Description  string
	Stock        *int
	RentalPrice  string
	SalePrice    string
	Availability *bool
	Images       []ImageUpload
	ImageURLs    []string
}

type UpdateRequest struct {
	ID             string
	Title          *string
	Description    *string
	Stock          *int
	RentalPrice    *string
	SalePrice      *string
	Availability   *bool
	Images         []ImageUpload
	ImageURLs      []string
	RemoveImageIDs []string
}

type ImageResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type Response struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Slug         string          `json:"slug"`
	Description  string          `json:"description"`
	Stock        int             `json:"stock"`
	RentalPrice  string          `json:"rental_price"`
	SalePrice    string          `json:"sale_price"`
	Availability bool            `json:"availability"`
	LikesCount   int             `json:"likes"`
	Images       []ImageResponse `json:"images"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type AvailabilityResponse struct {
	Message string `json:"message"`
}

type LikeResponse struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likes"`
}

var (
	ErrInvalidID          = errors.New("invalid_id")
	ErrNotFound           = errors.New("movie_not_found")
	ErrInvalidTitle       = errors.New("invalid_title")
	ErrInvalidDescription = errors.New("invalid_description")
	ErrInvalidStock       = errors.New("invalid_stock")
	ErrInvalidRentalPrice = errors.New("invalid_rental_price")
	ErrInvalidSalePrice   = errors.New("invalid_sale_price")
	ErrImageRequired      = errors.New("image_required")
	ErrInvalidImage       = errors.New("invalid_image")
	ErrInvalidImageURL    = errors.New("invalid_image_url")
	ErrInvalidUser        = errors.New("invalid_user")
)
