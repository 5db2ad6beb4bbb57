package observability

import (
	"strings"

	"github.com/smallbiznis/moviestore/internal/config"
)

// Config is the slice of application configuration the telemetry stack needs.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled       bool
	OtelEndpoint      string
	OtelProtocol      string
	OtelSamplingRatio float64
}

func LoadConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "moviestore"
	}
	obs := cfg.Observability
	return Config{
		ServiceName:       name,
		Environment:       strings.TrimSpace(cfg.Environment),
		Version:           strings.TrimSpace(cfg.AppVersion),
		LogLevel:          obs.LogLevel,
		LogFormat:         obs.LogFormat,
		OtelEnabled:       obs.OtelEnabled,
		OtelEndpoint:      obs.OtelEndpoint,
		OtelProtocol:      obs.OtelProtocol,
		OtelSamplingRatio: obs.OtelSamplingRatio,
	}
}

// Debug reports whether verbose request logging is wanted.
func (c Config) Debug() bool {
	if strings.EqualFold(c.LogLevel, "debug") {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
