package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/moviestore/internal/config"
	"github.com/smallbiznis/moviestore/internal/providers/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentMail struct {
	to       []string
	template string
	data     map[string]any
	deadline bool
}

type recordingProvider struct {
	email.LogProvider
	sent []sentMail
	err  error
}

func (p *recordingProvider) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	_, hasDeadline := ctx.Deadline()
	p.sent = append(p.sent, sentMail{to: to, template: templateName, data: data, deadline: hasDeadline})
	return p.err
}

func newNotifier(provider email.Provider, emailCfg config.EmailConfig) Notifier {
	return New(Params{
		Config: config.Config{Email: emailCfg},
		Log:    zap.NewNop(),
		Email:  provider,
	})
}

func TestRentPaidNotifiesRenterAndOperator(t *testing.T) {
	provider := &recordingProvider{}
	n := newNotifier(provider, config.EmailConfig{OperatorAddress: "ops@store.local", Timeout: time.Second})

	n.RentPaid(context.Background(), RentPaid{
		RentID:   "1",
		Username: "alice",
		Email:    "alice@example.com",
		Title:    "Heat",
		Quantity: 2,
		DueDate:  time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC),
		Amount:   "2.00",
		Currency: "usd",
	})

	require.Len(t, provider.sent, 2)
	assert.Equal(t, []string{"alice@example.com"}, provider.sent[0].to)
	assert.Equal(t, email.TemplateRentPaid, provider.sent[0].template)
	assert.Equal(t, "12-05-2024", provider.sent[0].data["due_date"])
	assert.Equal(t, "USD", provider.sent[0].data["currency"])
	assert.True(t, provider.sent[0].deadline)

	assert.Equal(t, []string{"ops@store.local"}, provider.sent[1].to)
	assert.Equal(t, email.TemplateOperatorRentPaid, provider.sent[1].template)
}

func TestUnmatchedPaymentUsesFallback(t *testing.T) {
	provider := &recordingProvider{}
	n := newNotifier(provider, config.EmailConfig{OperatorAddress: "ops@store.local", FallbackAddress: "finance@store.local"})

	n.UnmatchedPayment(context.Background(), UnmatchedPayment{Provider: "stripe", Reference: "cs_1", ReceivedAt: time.Now()})

	require.Len(t, provider.sent, 1)
	assert.Equal(t, []string{"finance@store.local"}, provider.sent[0].to)
	assert.Equal(t, email.TemplateUnmatchedPayment, provider.sent[0].template)
}

func TestUnmatchedPaymentWithoutAddressIsDropped(t *testing.T) {
	provider := &recordingProvider{}
	n := newNotifier(provider, config.EmailConfig{})

	n.UnmatchedPayment(context.Background(), UnmatchedPayment{Provider: "stripe", Reference: "cs_1"})
	assert.Empty(t, provider.sent)
}

func TestSendFailureIsSwallowed(t *testing.T) {
	provider := &recordingProvider{err: errors.New("smtp down")}
	n := newNotifier(provider, config.EmailConfig{OperatorAddress: "ops@store.local"})

	assert.NotPanics(t, func() {
		n.RentPaid(context.Background(), RentPaid{Email: "bob@example.com"})
	})
	assert.Len(t, provider.sent, 2)
}
