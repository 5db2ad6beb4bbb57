package domain

import (
	"context"
	"errors"
	"time"

	authdomain "github.com/smallbiznis/moviestore/internal/auth/domain"
)

// Return outcomes.
const (
	OutcomePunctualReturn       = "punctual_return"
	OutcomeExtraChargeGenerated = "extra_charge_generated"
)

const (
	MessageRentCreated          = "Rent created, complete the payment to confirm it."
	MessagePunctualReturn       = "Movie returned on time."
	MessageExtraChargeGenerated = "Movie returned late, an extra charge was generated."
)

type Service interface {
	Create(ctx context.Context, caller authdomain.Principal, req CreateRequest) (*CreateResponse, error)
	List(ctx context.Context, caller authdomain.Principal, req ListRequest) ([]Response, error)
	Get(ctx context.Context, caller authdomain.Principal, id string) (*Response, error)
	Update(ctx context.Context, caller authdomain.Principal, req UpdateRequest) (*Response, error)
	Return(ctx context.Context, caller authdomain.Principal, id string) (*ReturnResponse, error)
}

type CreateRequest struct {
	MovieID  string
	Quantity int
	DueDate  time.Time
}

type ListRequest struct {
	Status   string
	Returned *bool
	MovieID  string
}

type UpdateRequest struct {
	ID      string
	DueDate *time.Time
}

type Response struct {
	ID          string     `json:"id"`
	RentedBy    string     `json:"rented_by"`
	MovieID     string     `json:"movie"`
	Quantity    int        `json:"quantity"`
	DueDate     string     `json:"due_date"`
	Amount      string     `json:"amount"`
	Status      Status     `json:"status"`
	Returned    bool       `json:"returned"`
	ReturnedAt  *time.Time `json:"returned_at"`
	ExtraCharge string     `json:"extra_charge"`
	Paid        bool       `json:"is_paid"`
	PaidAt      *time.Time `json:"paid_at"`
	PaymentURL  *string    `json:"payment_url"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type CreateResponse struct {
	Message    string   `json:"message"`
	Data       Response `json:"data"`
	SessionID  string   `json:"session_id"`
	SessionURL string   `json:"session_url"`
}

type ReturnResponse struct {
	Outcome  string   `json:"outcome"`
	Message  string   `json:"message"`
	LateDays int      `json:"late_days"`
	Data     Response `json:"data"`
}

// DueDateLayout is the wire format of due dates.
const DueDateLayout = "02-01-2006"

var (
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidMovie      = errors.New("invalid_movie")
	ErrInvalidDueDate    = errors.New("invalid_due_date")
	ErrRentNotFound      = errors.New("rent_not_found")
	ErrMovieUnavailable  = errors.New("movie_unavailable")
	ErrAlreadyReturned   = errors.New("rent_already_returned")
	ErrForbidden         = errors.New("forbidden")
	ErrGatewayNotEnabled = errors.New("payment_gateway_not_configured")
)
