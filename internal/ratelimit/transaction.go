package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/moviestore/internal/config"
)

const (
	ReasonUserRate    = "user-rate"
	ReasonConcurrency = "movie-concurrency"
)

const defaultLockTTL = 15 * time.Second

var ErrInvalidLockTTL = errors.New("lock_ttl_invalid")

// releaseScript deletes the lease key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// TransactionLimiter throttles rent_it and buy_it per user and lets a user
// hold one in-flight transaction per movie. A nil limiter allows everything.
type TransactionLimiter struct {
	client  redis.UniversalClient
	bucket  *Bucket
	lockTTL time.Duration
}

// Lease is a held per-user, per-movie transaction slot.
type Lease struct {
	client redis.UniversalClient
	key    string
	token  string
}

func NewTransactionLimiter(cfg config.Config) (*TransactionLimiter, error) {
	rl := cfg.RateLimit
	if !rl.Enabled {
		return nil, nil
	}
	addr := strings.TrimSpace(rl.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(rl.RedisPassword),
		DB:       rl.RedisDB,
	})
	limiter, err := newTransactionLimiter(client, rl.TransactionRate, rl.TransactionBurst, rl.LockTTL)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return limiter, nil
}

func newTransactionLimiter(client redis.UniversalClient, rate float64, burst int, lockTTL time.Duration) (*TransactionLimiter, error) {
	bucket, err := NewBucket(client, rate, burst)
	if err != nil {
		return nil, err
	}
	if lockTTL < 0 {
		return nil, ErrInvalidLockTTL
	}
	if lockTTL == 0 {
		lockTTL = defaultLockTTL
	}
	return &TransactionLimiter{client: client, bucket: bucket, lockTTL: lockTTL}, nil
}

func (l *TransactionLimiter) Enabled() bool {
	return l != nil && l.client != nil
}

func (l *TransactionLimiter) AllowUser(ctx context.Context, userID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Take(ctx, userKey(userID))
}

// AcquireMovie returns a nil lease without error when another request of the
// same user already holds the movie. A disabled limiter hands out no-op leases.
func (l *TransactionLimiter) AcquireMovie(ctx context.Context, userID, movieID string) (*Lease, error) {
	if !l.Enabled() {
		return &Lease{}, nil
	}

	lease := &Lease{client: l.client, key: lockKey(userID, movieID), token: ulid.Make().String()}
	err := l.client.SetArgs(ctx, lease.key, lease.token, redis.SetArgs{Mode: "NX", TTL: l.lockTTL}).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return lease, nil
}

func (l *TransactionLimiter) Close() error {
	if !l.Enabled() {
		return nil
	}
	return l.client.Close()
}

func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.client == nil {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

func userKey(userID string) string {
	return "moviestore:tx:user:" + strings.TrimSpace(userID)
}

func lockKey(userID, movieID string) string {
	return "moviestore:tx:lock:" + strings.TrimSpace(userID) + ":" + strings.TrimSpace(movieID)
}
