package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config tunes the per-shop request limiter.
type Config struct {
	RequestsPerMinute int    `envconfig:"RATE_LIMIT_PER_MINUTE" default:"30"`
	KeyPrefix         string `envconfig:"RATE_LIMIT_KEY_PREFIX" default:"storewise:ratelimit:"`
}

// Info is the limiter state after a check.
type Info struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	Allowed   bool
}

// Limiter is a Redis-backed sliding window rate limiter keyed by shop domain.
// The window logic runs in a Lua script so concurrent requests from the same
// shop stay atomic.
type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, 0, window_start)
	local current = redis.call('ZCARD', key)

	if current < limit then
		redis.call('ZADD', key, now, now)
		redis.call('EXPIRE', key, window)
		return {1, current + 1}
	end
	return {0, current}
`)

func New(client *redis.Client, cfg Config) (*Limiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.RequestsPerMinute <= 0 {
		return nil, errors.New("requests per minute must be greater than 0")
	}
	return &Limiter{
		client: client,
		limit:  cfg.RequestsPerMinute,
		window: time.Minute,
		prefix: cfg.KeyPrefix,
	}, nil
}

// Allow records one request for the shop and reports whether it fits in the
// current window.
func (l *Limiter) Allow(ctx context.Context, shopDomain string) (*Info, error) {
	now := time.Now()
	windowStart := now.Add(-l.window)

	result, err := slidingWindow.Run(ctx, l.client, []string{l.prefix + shopDomain},
		now.UnixNano(),
		windowStart.UnixNano(),
		l.limit,
		int(l.window.Seconds()),
	).Result()
	if err != nil {
		return nil, err
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return nil, errors.New("unexpected rate limit script result")
	}
	allowed, ok := values[0].(int64)
	if !ok {
		return nil, errors.New("unexpected rate limit script result")
	}
	count, ok := values[1].(int64)
	if !ok {
		return nil, errors.New("unexpected rate limit script result")
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return &Info{
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   now.Add(l.window),
		Allowed:   allowed == 1,
	}, nil
}

// Reset clears the window for a shop.
func (l *Limiter) Reset(ctx context.Context, shopDomain string) error {
	return l.client.Del(ctx, l.prefix+shopDomain).Err()
}
