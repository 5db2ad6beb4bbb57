package events

import (
	"context"

	"github.com/smallbiznis/moviestore/internal/clock"
	"github.com/smallbiznis/moviestore/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewFromConfig),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	Clock     clock.Clock `optional:"true"`
}

// NewFromConfig connects to NATS when NATS_URL is set and degrades to a
// no-op publisher otherwise or when the connection fails.
func NewFromConfig(p Params) Publisher {
	log := p.Log.Named("events")
	if p.Config.Events.NATSURL == "" {
		log.Info("NATS_URL not set, domain events disabled")
		return NewNoop()
	}

	pub, err := NewNATS(p.Config.Events.NATSURL, p.Config.Events.Stream, p.Config.Events.MaxAge, p.Clock)
	if err != nil {
		log.Warn("NATS unavailable, using noop publisher", zap.Error(err))
		return NewNoop()
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return pub.Close()
		},
	})
	return pub
}
