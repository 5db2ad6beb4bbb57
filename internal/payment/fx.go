package payment

import (
	"net/http"
	"strings"

	"github.com/smallbiznis/moviestore/internal/config"
	"github.com/smallbiznis/moviestore/internal/payment/adapters"
	"github.com/smallbiznis/moviestore/internal/payment/adapters/stripe"
	"github.com/smallbiznis/moviestore/internal/payment/adapters/xendit"
	"github.com/smallbiznis/moviestore/internal/payment/domain"
	"github.com/smallbiznis/moviestore/internal/payment/repository"
	paymentservice "github.com/smallbiznis/moviestore/internal/payment/service"
	"github.com/smallbiznis/moviestore/internal/payment/webhook"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			stripe.NewFactory(),
			xendit.NewFactory(),
		)
	}),
	fx.Provide(NewGateway),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)

type GatewayParams struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	Registry *adapters.Registry
	Pricing  *config.PricingConfigHolder
}

// NewGateway builds the configured checkout gateway. An empty provider leaves
// the store without checkout, which only suits local development.
func NewGateway(p GatewayParams) (domain.Gateway, error) {
	provider := strings.ToLower(strings.TrimSpace(p.Config.Payment.Provider))
	if provider == "" {
		p.Log.Warn("no payment provider configured; rents cannot be checked out")
		return nil, nil
	}

	policy := p.Pricing.Get()
	currency := p.Config.Payment.Currency
	if currency == "" {
		currency = policy.Currency
	}

	gateway, err := p.Registry.NewGateway(provider, domain.GatewayConfig{
		SecretKey:        p.Config.Payment.SecretKey,
		WebhookSecret:    p.Config.Payment.WebhookSecret,
		CallbackToken:    p.Config.Payment.CallbackToken,
		BaseURL:          p.Config.Payment.BaseURL,
		SuccessURL:       p.Config.Payment.SuccessURL,
		CancelURL:        p.Config.Payment.CancelURL,
		Currency:         currency,
		CurrencyExponent: policy.CurrencyExponent,
		Timeout:          p.Config.Payment.Timeout,
		HTTPClient: &http.Client{
			Timeout:   p.Config.Payment.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	})
	if err != nil {
		return nil, err
	}
	return gateway, nil
}
