package ratelimit

import (
	"context"

	"github.com/smallbiznis/moviestore/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.limit",
	fx.Provide(provideTransactionLimiter),
)

func provideTransactionLimiter(lc fx.Lifecycle, cfg config.Config) (*TransactionLimiter, error) {
	limiter, err := NewTransactionLimiter(cfg)
	if err != nil || limiter == nil {
		return limiter, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return limiter.Close()
		},
	})
	return limiter, nil
}
