package domain

import (
	"context"
	"errors"
	"io"
	"time"

	authdomain "github.com/smallbiznis/moviestore/internal/auth/domain"
)

type Service interface {
	Create(ctx context.Context, caller authdomain.Principal, req CreateRequest) (*Response, error)
	List(ctx context.Context, caller authdomain.Principal, req ListRequest) ([]Response, error)
	Get(ctx context.Context, caller authdomain.Principal, id string) (*Response, error)
	Receipt(ctx context.Context, caller authdomain.Principal, id string) (*Receipt, error)
}

type CreateRequest struct {
	MovieID  string
	Quantity int
}

type ListRequest struct {
	MovieID string
}

type Response struct {
	ID        string    `json:"id"`
	MovieID   string    `json:"movie"`
	UserID    string    `json:"user"`
	BuyedBy   string    `json:"buyed_by"`
	Title     string    `json:"title"`
	Quantity  int       `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
	Amount    string    `json:"amount"`
	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"created_at"`
}

type Receipt struct {
	Filename string
	Body     io.Reader
}

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidMovie     = errors.New("invalid_movie")
	ErrSaleNotFound     = errors.New("sale_not_found")
	ErrMovieUnavailable = errors.New("movie_unavailable")
	ErrForbidden        = errors.New("forbidden")
)
