package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PricingPolicy is the hot-reloadable part of pricing. Amounts themselves
// live on the movie rows.
type PricingPolicy struct {
	LateFeeMultiplier decimal.Decimal
	MaxRentalDays     int
	Currency          string
	CurrencyExponent  int32
}

type pricingFile struct {
	LateFeeMultiplier string `mapstructure:"lateFeeMultiplier"`
	MaxRentalDays     int    `mapstructure:"maxRentalDays"`
	Currency          string `mapstructure:"currency"`
	CurrencyExponent  int32  `mapstructure:"currencyExponent"`
}

func DefaultPricingPolicy() PricingPolicy {
	return PricingPolicy{
		LateFeeMultiplier: decimal.NewFromInt(1),
		MaxRentalDays:     0,
		Currency:          "usd",
		CurrencyExponent:  2,
	}
}

type PricingConfigHolder struct {
	current atomic.Value // holds PricingPolicy
}

// NewStaticPricingHolder returns a holder that never reloads.
func NewStaticPricingHolder(policy PricingPolicy) *PricingConfigHolder {
	holder := &PricingConfigHolder{}
	holder.current.Store(policy)
	return holder
}

func NewPricingConfigHolder(cfg Config, log *zap.Logger) (*PricingConfigHolder, error) {
	return loadPricingConfig(cfg.PricingConfigDir, log.Named("pricing.config"))
}

func loadPricingConfig(dir string, log *zap.Logger) (*PricingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("/etc/moviestore")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MOVIESTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPricingPolicy()
	v.SetDefault("pricing.lateFeeMultiplier", defaults.LateFeeMultiplier.String())
	v.SetDefault("pricing.maxRentalDays", defaults.MaxRentalDays)
	v.SetDefault("pricing.currency", defaults.Currency)
	v.SetDefault("pricing.currencyExponent", defaults.CurrencyExponent)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	policy, err := decodePricingPolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPricingHolder(policy)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePricingPolicy(v)
		if err != nil {
			log.Warn("pricing config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("pricing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PricingConfigHolder) Get() PricingPolicy {
	return h.current.Load().(PricingPolicy)
}

func decodePricingPolicy(v *viper.Viper) (PricingPolicy, error) {
	var raw pricingFile
	if err := v.UnmarshalKey("pricing", &raw); err != nil {
		return PricingPolicy{}, err
	}

	multiplier, err := decimal.NewFromString(strings.TrimSpace(raw.LateFeeMultiplier))
	if err != nil {
		return PricingPolicy{}, fmt.Errorf("pricing.lateFeeMultiplier: %w", err)
	}

	policy := PricingPolicy{
		LateFeeMultiplier: multiplier,
		MaxRentalDays:     raw.MaxRentalDays,
		Currency:          strings.ToLower(strings.TrimSpace(raw.Currency)),
		CurrencyExponent:  raw.CurrencyExponent,
	}
	if err := validatePricingPolicy(policy); err != nil {
		return PricingPolicy{}, err
	}
	return policy, nil
}

func validatePricingPolicy(p PricingPolicy) error {
	if p.LateFeeMultiplier.IsNegative() {
		return errors.New("pricing.lateFeeMultiplier cannot be negative")
	}
	if p.MaxRentalDays < 0 {
		return errors.New("pricing.maxRentalDays cannot be negative")
	}
	if p.Currency == "" {
		return errors.New("pricing.currency cannot be empty")
	}
	if p.CurrencyExponent < 0 || p.CurrencyExponent > 4 {
		return errors.New("pricing.currencyExponent must be between 0 and 4")
	}
	return nil
}
