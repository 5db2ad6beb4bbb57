package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/moviestore/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReply(t *testing.T) {
	res, err := parseReply([]any{int64(1), "3.5", int64(1700000000000)}, 1, 5)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 3, res.Remaining)
	assert.Equal(t, 5, res.Limit)
	assert.Zero(t, res.RetryAfter)

	res, err = parseReply([]any{int64(0), "0.25", int64(1700000000000)}, 0.5, 5)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 1500*time.Millisecond, res.RetryAfter)
	assert.Equal(t, time.UnixMilli(1700000000000).Add(1500*time.Millisecond), res.ResetTime)

	_, err = parseReply([]any{int64(1)}, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidReply)
	_, err = parseReply([]any{"1", "x", int64(0)}, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidReply)
}

func TestIdleTTL(t *testing.T) {
	assert.Equal(t, 10*time.Second, idleTTL(1, 5))
	assert.Equal(t, time.Second, idleTTL(100, 1))
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	limiter, err := NewTransactionLimiter(config.Config{})
	require.NoError(t, err)
	require.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	res, err := limiter.AllowUser(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	lease, err := limiter.AcquireMovie(context.Background(), "42", "7")
	require.NoError(t, err)
	require.NotNil(t, lease)
	assert.NoError(t, lease.Release(context.Background()))
	assert.NoError(t, limiter.Close())
}

func TestNewTransactionLimiterValidatesConfig(t *testing.T) {
	_, err := NewTransactionLimiter(config.Config{RateLimit: config.RateLimitConfig{Enabled: true}})
	assert.Error(t, err)

	_, err = NewTransactionLimiter(config.Config{RateLimit: config.RateLimitConfig{
		Enabled:   true,
		RedisAddr: "localhost:6379",
	}})
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestUnconfiguredBucket(t *testing.T) {
	_, err := NewBucket(nil, 1, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)

	var bucket *Bucket
	_, err = bucket.Take(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNotConfigured)

	var lease *Lease
	assert.NoError(t, lease.Release(context.Background()))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "moviestore:tx:user:42", userKey(" 42 "))
	assert.Equal(t, "moviestore:tx:lock:42:7", lockKey("42", "7"))
}
