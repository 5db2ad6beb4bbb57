package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/smallbiznis/moviestore/internal/clock"
	"github.com/smallbiznis/moviestore/pkg/telemetry/correlation"
)

const subjectPrefix = "moviestore."

type natsPublisher struct {
	nc    *nats.Conn
	js    nats.JetStreamContext
	clock clock.Clock
}

// Subject maps an event type like rent.paid to moviestore.rent.paid.
func Subject(eventType string) string {
	return subjectPrefix + strings.TrimSpace(eventType)
}

func NewNATS(url, stream string, maxAge time.Duration, clk clock.Clock) (Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("moviestore"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats jetstream: %w", err)
	}
	if err := ensureStream(js, stream, maxAge); err != nil {
		nc.Close()
		return nil, err
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &natsPublisher{nc: nc, js: js, clock: clk}, nil
}

func ensureStream(js nats.JetStreamContext, name string, maxAge time.Duration) error {
	if _, err := js.StreamInfo(name); err == nil {
		return nil
	}
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  []string{subjectPrefix + ">"},
		Retention: nats.LimitsPolicy,
		MaxAge:    maxAge,
		Discard:   nats.DiscardOld,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create %s stream: %w", name, err)
	}
	return nil
}

func (p *natsPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	env, err := NewEnvelope(ctx, eventType, payload, p.clock.Now())
	if err != nil {
		return err
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(Subject(eventType))
	msg.Data = b
	msg.Header.Set(nats.MsgIdHdr, env.ID)
	for key, value := range correlation.TraceFields(ctx) {
		msg.Header.Set(key, value)
	}
	_, err = p.js.PublishMsg(msg, nats.Context(ctx))
	return err
}

func (p *natsPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
