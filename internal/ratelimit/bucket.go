package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// bucketScript refills by elapsed server time, then takes one token.
// KEYS[1] bucket hash; ARGV rate/s, burst, ttl ms. Replies {allowed, tokens, now_ms}.
var bucketScript = redis.NewScript(`
local rate, burst, ttl = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3])
local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "at")
local tokens, at = tonumber(state[1]) or burst, tonumber(state[2]) or now
if now > at then
  tokens = math.min(burst, tokens + (now - at) / 1000 * rate)
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "at", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, tostring(tokens), now}
`)

var (
	ErrNotConfigured = errors.New("rate_limiter_not_configured")
	ErrEmptyKey      = errors.New("rate_limiter_key_empty")
	ErrInvalidLimit  = errors.New("rate_limiter_invalid_limit")
	ErrInvalidReply  = errors.New("rate_limiter_invalid_reply")
)

// Result is the outcome of one bucket take.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Bucket is a redis token bucket refilled at rate tokens per second up to burst.
type Bucket struct {
	client redis.Scripter
	rate   float64
	burst  int
}

func NewBucket(client redis.Scripter, rate float64, burst int) (*Bucket, error) {
	if client == nil {
		return nil, ErrNotConfigured
	}
	if rate <= 0 || burst <= 0 {
		return nil, ErrInvalidLimit
	}
	return &Bucket{client: client, rate: rate, burst: burst}, nil
}

func (b *Bucket) Take(ctx context.Context, key string) (*Result, error) {
	if b == nil || b.client == nil {
		return nil, ErrNotConfigured
	}
	if key == "" {
		return nil, ErrEmptyKey
	}

	reply, err := bucketScript.Run(ctx, b.client, []string{key}, b.rate, b.burst, idleTTL(b.rate, b.burst).Milliseconds()).Slice()
	if err != nil {
		return nil, err
	}
	return parseReply(reply, b.rate, b.burst)
}

func parseReply(reply []any, rate float64, burst int) (*Result, error) {
	if len(reply) != 3 {
		return nil, ErrInvalidReply
	}
	allowed, ok := reply[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: allowed flag %T", ErrInvalidReply, reply[0])
	}
	tokensRaw, ok := reply[1].(string)
	if !ok {
		return nil, fmt.Errorf("%w: tokens %T", ErrInvalidReply, reply[1])
	}
	tokens, err := strconv.ParseFloat(tokensRaw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}
	nowMillis, ok := reply[2].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: timestamp %T", ErrInvalidReply, reply[2])
	}

	res := &Result{
		Allowed:   allowed == 1,
		Limit:     burst,
		Remaining: int(math.Floor(tokens)),
		ResetTime: time.UnixMilli(nowMillis),
	}
	if !res.Allowed && tokens < 1 {
		res.RetryAfter = time.Duration((1 - tokens) / rate * float64(time.Second))
		res.ResetTime = res.ResetTime.Add(res.RetryAfter)
	}
	return res, nil
}

// idleTTL keeps a bucket for twice the time a full refill takes, at least 1s.
func idleTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil(float64(burst) / rate * 2)
	return time.Duration(max(seconds, 1)) * time.Second
}
