package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, perMinute int) *Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	l, err := New(rdb, Config{RequestsPerMinute: perMinute, KeyPrefix: "test:ratelimit:"})
	require.NoError(t, err)
	return l
}

func TestAllowWithinLimit(t *testing.T) {
	l := newTestLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		info, err := l.Allow(ctx, "demo.myshopify.com")
		require.NoError(t, err)
		assert.True(t, info.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 3, info.Limit)
		assert.Equal(t, 3-(i+1), info.Remaining)
	}

	info, err := l.Allow(ctx, "demo.myshopify.com")
	require.NoError(t, err)
	assert.False(t, info.Allowed)
	assert.Zero(t, info.Remaining)
}

func TestShopsAreIsolated(t *testing.T) {
	l := newTestLimiter(t, 1)
	ctx := context.Background()

	info, err := l.Allow(ctx, "a.myshopify.com")
	require.NoError(t, err)
	require.True(t, info.Allowed)

	info, err = l.Allow(ctx, "a.myshopify.com")
	require.NoError(t, err)
	assert.False(t, info.Allowed)

	info, err = l.Allow(ctx, "b.myshopify.com")
	require.NoError(t, err)
	assert.True(t, info.Allowed)
}

func TestReset(t *testing.T) {
	l := newTestLimiter(t, 1)
	ctx := context.Background()

	_, err := l.Allow(ctx, "demo.myshopify.com")
	require.NoError(t, err)

	info, err := l.Allow(ctx, "demo.myshopify.com")
	require.NoError(t, err)
	require.False(t, info.Allowed)

	require.NoError(t, l.Reset(ctx, "demo.myshopify.com"))

	info, err = l.Allow(ctx, "demo.myshopify.com")
	require.NoError(t, err)
	assert.True(t, info.Allowed)
}

func TestNewValidation(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	_, err := New(nil, Config{RequestsPerMinute: 1})
	assert.Error(t, err)

	_, err = New(rdb, Config{RequestsPerMinute: 0})
	assert.Error(t, err)
}
