// Package events publishes catalog and transaction events to NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/moviestore/pkg/telemetry/correlation"
)

const (
	MovieCreated             = "movie.created"
	MovieUpdated             = "movie.updated"
	MovieDeleted             = "movie.deleted"
	MovieAvailabilityChanged = "movie.availability_changed"
	RentCreated              = "rent.created"
	RentPaid                 = "rent.paid"
	RentReturned             = "rent.returned"
	RentOverdue              = "rent.overdue"
	SaleCreated              = "sale.created"
)

const envelopeVersion = "1.0.0"

type Envelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Version       string          `json:"version"`
	OccurredAt    time.Time       `json:"occurredAt"`
	CorrelationID string          `json:"correlationId"`
	Payload       json.RawMessage `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
	Close() error
}

func NewEnvelope(ctx context.Context, eventType string, payload any, now time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	_, correlationID := correlation.EnsureCorrelationID(ctx)
	return Envelope{
		ID:            ulid.Make().String(),
		Type:          eventType,
		Version:       envelopeVersion,
		OccurredAt:    now.UTC(),
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

type noop struct{}

func NewNoop() Publisher { return noop{} }

func (noop) Publish(context.Context, string, any) error { return nil }
func (noop) Close() error                                { return nil }

// Recorder keeps published envelopes in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(ctx context.Context, eventType string, payload any) error {
	env, err := NewEnvelope(ctx, eventType, payload, time.Now())
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.events = append(r.events, env)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Envelope, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
