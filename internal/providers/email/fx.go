package email

import (
	"strings"

	"github.com/smallbiznis/moviestore/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	switch strings.ToLower(strings.TrimSpace(cfg.Email.Provider)) {
	case "smtp":
		return NewSMTP(Config{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.SMTPFrom,
		})
	case "", "noop":
		return &LogProvider{Log: log.Named("email")}
	default:
		log.Warn("unknown email provider, falling back to noop", zap.String("provider", cfg.Email.Provider))
		return &LogProvider{Log: log.Named("email")}
	}
}
