package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=gateway.go -destination=../mocks/mock_gateway.go -package=mocks

// CheckoutRequest describes one payable rent. Amount is an exact decimal in
// major units; gateways convert it at their boundary.
type CheckoutRequest struct {
	ExternalID     string
	Description    string
	Amount         decimal.Decimal
	Currency       string
	CustomerEmail  string
	IdempotencyKey string
}

type CheckoutSession struct {
	Reference string
	URL       string
	ExpiresAt *time.Time
}

type Gateway interface {
	Provider() string
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

type GatewayConfig struct {
	SecretKey        string
	WebhookSecret    string
	CallbackToken    string
	BaseURL          string
	SuccessURL       string
	CancelURL        string
	Currency         string
	CurrencyExponent int32
	Timeout          time.Duration
	HTTPClient       *http.Client
}

type GatewayFactory interface {
	Provider() string
	NewGateway(cfg GatewayConfig) (Gateway, error)
}

// GatewayError wraps a failed or timed out checkout request.
type GatewayError struct {
	Provider string
	Timeout  bool
	Err      error
}

func (e *GatewayError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s gateway timeout: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s gateway error: %v", e.Provider, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func NewGatewayError(provider string, err error) *GatewayError {
	return &GatewayError{
		Provider: provider,
		Timeout:  errors.Is(err, context.DeadlineExceeded),
		Err:      err,
	}
}

var (
	ErrProviderNotFound = errors.New("payment_provider_not_found")
	ErrInvalidProvider  = errors.New("invalid_payment_provider")
	ErrInvalidConfig    = errors.New("invalid_payment_config")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrEventIgnored     = errors.New("event_ignored")
	ErrInvalidReference = errors.New("invalid_payment_reference")
	ErrUnexpectedStatus = errors.New("unexpected_gateway_status")
)
