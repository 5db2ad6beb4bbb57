package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is a received webhook delivery, unique per provider event id.
type EventRecord struct {
	ID               snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider         string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID  string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType        string         `json:"event_type" gorm:"type:text;not null"`
	PaymentReference *string        `json:"payment_reference"`
	Payload          datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt       time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt      *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypePaymentSucceeded = "payment_succeeded"
	EventTypePaymentFailed    = "payment_failed"
	EventTypePaymentExpired   = "payment_expired"
)

// PaymentEvent is the canonical payment event parsed by gateways.
type PaymentEvent struct {
	Provider        string
	ProviderEventID string
	Type            string
	Reference       string
	ExternalID      string
	Amount          int64
	Currency        string
	OccurredAt      time.Time
	RawPayload      []byte
}

func (e PaymentEvent) Succeeded() bool {
	return e.Type == EventTypePaymentSucceeded
}
