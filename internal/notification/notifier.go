// Package notification tells renters and the store operator about payment
// outcomes. Delivery failures are logged and never reach the caller.
package notification

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/moviestore/internal/config"
	obsmetrics "github.com/smallbiznis/moviestore/internal/observability/metrics"
	"github.com/smallbiznis/moviestore/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(New),
)

type RentPaid struct {
	RentID    string
	Username  string
	Email     string
	Title     string
	Quantity  int
	DueDate   time.Time
	Amount    string
	Currency  string
	Reference string
}

type UnmatchedPayment struct {
	Provider   string
	Reference  string
	ReceivedAt time.Time
}

type Notifier interface {
	RentPaid(ctx context.Context, n RentPaid)
	UnmatchedPayment(ctx context.Context, n UnmatchedPayment)
}

type Params struct {
	fx.In

	Config     config.Config
	Log        *zap.Logger
	Email      email.Provider
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type notifier struct {
	log      *zap.Logger
	email    email.Provider
	metrics  *obsmetrics.Metrics
	operator string
	fallback string
	timeout  time.Duration
}

func New(p Params) Notifier {
	fallback := strings.TrimSpace(p.Config.Email.FallbackAddress)
	operator := strings.TrimSpace(p.Config.Email.OperatorAddress)
	if fallback == "" {
		fallback = operator
	}
	timeout := p.Config.Email.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &notifier{
		log:      p.Log.Named("notification"),
		email:    p.Email,
		metrics:  p.ObsMetrics,
		operator: operator,
		fallback: fallback,
		timeout:  timeout,
	}
}

func (n *notifier) RentPaid(ctx context.Context, msg RentPaid) {
	dueDate := msg.DueDate.Format("02-01-2006")
	if msg.Email != "" {
		n.send(ctx, []string{msg.Email}, email.TemplateRentPaid, map[string]any{
			"username": msg.Username,
			"title":    msg.Title,
			"quantity": msg.Quantity,
			"due_date": dueDate,
			"amount":   msg.Amount,
			"currency": strings.ToUpper(msg.Currency),
		})
	}
	if n.operator != "" {
		n.send(ctx, []string{n.operator}, email.TemplateOperatorRentPaid, map[string]any{
			"rent_id":   msg.RentID,
			"username":  msg.Username,
			"email":     msg.Email,
			"title":     msg.Title,
			"quantity":  msg.Quantity,
			"amount":    msg.Amount,
			"currency":  strings.ToUpper(msg.Currency),
			"reference": msg.Reference,
		})
	}
}

func (n *notifier) UnmatchedPayment(ctx context.Context, msg UnmatchedPayment) {
	if n.fallback == "" {
		n.log.Warn("unmatched payment with no fallback address",
			zap.String("provider", msg.Provider),
			zap.String("reference", msg.Reference),
		)
		return
	}
	n.send(ctx, []string{n.fallback}, email.TemplateUnmatchedPayment, map[string]any{
		"provider":    msg.Provider,
		"reference":   msg.Reference,
		"received_at": msg.ReceivedAt.UTC().Format(time.RFC3339),
	})
}

func (n *notifier) send(ctx context.Context, to []string, template string, data map[string]any) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	err := n.email.SendTemplate(sendCtx, to, template, data)
	n.metrics.RecordNotification(ctx, template, err == nil)
	if err != nil {
		n.log.Error("notification failed",
			zap.String("template", template),
			zap.Strings("to", to),
			zap.Error(err),
		)
		return
	}
	n.log.Debug("notification sent", zap.String("template", template), zap.Int("recipients", len(to)))
}
