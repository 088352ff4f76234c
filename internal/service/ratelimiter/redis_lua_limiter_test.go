package ratelimiter

import (
	"context"
	"math"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLuaLimiter(t *testing.T) *RedisLuaLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLuaLimiter(rdb, nil)
}

func TestNewRedisLuaLimiter_NilClient(t *testing.T) {
	assert.Nil(t, NewRedisLuaLimiter(nil, nil))
}

func TestAllow_NilLimiter_FailOpen(t *testing.T) {
	var limiter *RedisLuaLimiter
	allowed, retryAfter, err := limiter.Allow(context.Background(), "submit", "alice", 1)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Zero(t, retryAfter)
}

func TestAllow_NoBucketConfig_FailOpen(t *testing.T) {
	limiter := newTestRedisLuaLimiter(t)
	allowed, retryAfter, err := limiter.Allow(context.Background(), "unknown", "alice", 1)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Zero(t, retryAfter)
}

func TestAllow_RespectsCapacityAndRetryAfter(t *testing.T) {
	ctx := context.Background()
	limiter := newTestRedisLuaLimiter(t)
	fixed := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return fixed }
	limiter.SetBucketConfig("submit", BucketConfig{Capacity: 3, RefillRate: 0.5})

	for i := 0; i < 3; i++ {
		allowed, retryAfter, err := limiter.Allow(ctx, "submit", "alice", 1)
		require.NoError(t, err, "call %d", i)
		assert.True(t, allowed, "call %d", i)
		assert.Zero(t, retryAfter, "call %d", i)
	}

	allowed, retryAfter, err := limiter.Allow(ctx, "submit", "alice", 1)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 2*time.Second, retryAfter)

	allowed, _, err = limiter.Allow(ctx, "submit", "bob", 1)
	require.NoError(t, err)
	assert.True(t, allowed, "buckets are per subject")
}

func TestAllow_Refills(t *testing.T) {
	ctx := context.Background()
	limiter := newTestRedisLuaLimiter(t)
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }
	limiter.SetBucketConfig("login", BucketConfig{Capacity: 1, RefillRate: 1})

	allowed, _, err := limiter.Allow(ctx, "login", "10.0.0.1", 1)
	require.NoError(t, err)
	require.True(t, allowed)
	allowed, _, err = limiter.Allow(ctx, "login", "10.0.0.1", 1)
	require.NoError(t, err)
	require.False(t, allowed)

	now = now.Add(2 * time.Second)
	allowed, _, err = limiter.Allow(ctx, "login", "10.0.0.1", 1)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestSetBucketConfig_NilSafe(_ *testing.T) {
	var limiter *RedisLuaLimiter
	limiter.SetBucketConfig("key", BucketConfig{Capacity: 1, RefillRate: 1})
}

func TestNewBucketConfigFromPerMinute(t *testing.T) {
	cfg := NewBucketConfigFromPerMinute(60)
	assert.Equal(t, int64(60), cfg.Capacity)
	assert.InDelta(t, 1.0, cfg.RefillRate, 1e-9)
	assert.Equal(t, BucketConfig{}, NewBucketConfigFromPerMinute(0))
}

func TestToInt64AndToFloat64(t *testing.T) {
	assert.Equal(t, int64(5), toInt64(int64(5)))
	assert.Equal(t, int64(3), toInt64(3))
	assert.Equal(t, int64(7), toInt64(7.9))
	assert.Equal(t, int64(12), toInt64("12"))
	assert.Equal(t, int64(0), toInt64("not-a-number"))

	assert.InDelta(t, 1.5, toFloat64(1.5), 1e-9)
	assert.InDelta(t, 2.0, toFloat64(int64(2)), 1e-9)
	assert.InDelta(t, 0.25, toFloat64("0.25"), 1e-9)
	assert.True(t, math.IsNaN(toFloat64("nan?")))
	assert.True(t, math.IsNaN(toFloat64(nil)))
}
