package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadPricingConfigDefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	holder, err := loadPricingConfig(dir, zap.NewNop())
	require.NoError(t, err)

	policy := holder.Get()
	require.Equal(t, "1", policy.LateFeeMultiplier.String())
	require.Equal(t, "usd", policy.Currency)
	require.EqualValues(t, 2, policy.CurrencyExponent)
	require.Zero(t, policy.MaxRentalDays)
}

func TestLoadPricingConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	content := []byte("pricing:\n  lateFeeMultiplier: \"1.5\"\n  maxRentalDays: 30\n  currency: IDR\n  currencyExponent: 0\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pricing.yml"), content, 0o600))

	holder, err := loadPricingConfig(dir, zap.NewNop())
	require.NoError(t, err)

	policy := holder.Get()
	require.Equal(t, "1.5", policy.LateFeeMultiplier.String())
	require.Equal(t, 30, policy.MaxRentalDays)
	require.Equal(t, "idr", policy.Currency)
	require.EqualValues(t, 0, policy.CurrencyExponent)
}

func TestLoadPricingConfigRejectsNegativeMultiplier(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	content := []byte("pricing:\n  lateFeeMultiplier: \"-2\"\n  currency: usd\n  currencyExponent: 2\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pricing.yml"), content, 0o600))

	_, err := loadPricingConfig(dir, zap.NewNop())
	require.Error(t, err)
}
