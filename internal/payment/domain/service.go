package domain

import (
	"context"
	"net/http"
	"time"
)

type ConfirmOutcome string

const (
	OutcomeConfirmed        ConfirmOutcome = "confirmed"
	OutcomeAlreadyConfirmed ConfirmOutcome = "already_confirmed"
	OutcomeUnmatched        ConfirmOutcome = "unmatched"
)

type ConfirmResult struct {
	Outcome ConfirmOutcome
	RentID  string
}

type Service interface {
	// ConfirmPayment marks the rent holding reference as paid. It succeeds
	// for duplicates and unknown references; only the first confirmation
	// notifies.
	ConfirmPayment(ctx context.Context, provider, reference string, chargedAt time.Time) (*ConfirmResult, error)
	// ProcessEvent records a parsed gateway event once and applies it.
	ProcessEvent(ctx context.Context, event *PaymentEvent) error
}

type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}
