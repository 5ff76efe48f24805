package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/camps/pkg/config"
)

func TestNewClient_Disabled(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: false,
		},
	}

	client, err := New(cfg)
	require.NoError(t, err)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Ping(context.Background()))
	assert.NoError(t, client.Close())
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(Disabled(), "test")
	limit := TriggerRateLimit(3)

	for i := 0; i < 10; i++ {
		allowed, remaining, err := limiter.Allow(context.Background(), limit)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 3, remaining)
	}
}

func TestTriggerRateLimit(t *testing.T) {
	cfg := TriggerRateLimit(6)
	assert.Equal(t, 6, cfg.Limit)
	assert.Equal(t, time.Minute, cfg.Window)

	assert.Equal(t, 1, TriggerRateLimit(0).Limit)
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(Disabled(), "test")
	ctx := context.Background()

	var result []string
	found, err := cache.Get(ctx, "key", &result)
	require.NoError(t, err)
	assert.False(t, found)

	calls := 0
	err = cache.GetOrSet(ctx, RunsKey("WEEKLY", 10), &result, TTLShort, func() (interface{}, error) {
		calls++
		return []string{"a", "b"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, result)
	assert.Equal(t, 1, calls)

	assert.NoError(t, cache.Delete(ctx, "key"))
	assert.NoError(t, cache.DeletePattern(ctx, RunsPattern))
}

func TestLocker_Disabled(t *testing.T) {
	locker := NewLocker(Disabled(), "camps")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	first, err := locker.Acquire(context.Background(), TrendRunLockName(start), time.Minute)
	require.NoError(t, err)
	second, err := locker.Acquire(context.Background(), TrendRunLockName(start), time.Minute)
	require.NoError(t, err)

	assert.Equal(t, "camps:lock:trends:2024-01-01", first.Key())
	assert.NoError(t, first.Release(context.Background()))
	assert.NoError(t, second.Release(context.Background()))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "trends:runs:WEEKLY:20", RunsKey("WEEKLY", 20))
	assert.Equal(t, "trends:runs:all:5", RunsKey("", 5))
	assert.Equal(t, "trends:2024-03-04", TrendRunLockName(time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)))
}

// openTestRedis connects to REDIS_HOST when set
func openTestRedis(t *testing.T) *Client {
	t.Helper()
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		t.Skip("REDIS_HOST not set, skipping Redis integration test")
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}

	client, err := New(&config.Config{Redis: config.RedisConfig{Host: host, Port: port, Enabled: true}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLocker_Exclusive(t *testing.T) {
	client := openTestRedis(t)
	ctx := context.Background()
	locker := NewLocker(client, "camps-test")
	name := TrendRunLockName(time.Now())

	lock, err := locker.Acquire(ctx, name, 10*time.Second)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, name, 10*time.Second)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, lock.Release(ctx))

	again, err := locker.Acquire(ctx, name, 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))

	// a released handle must not free somebody else's lock
	held, err := locker.Acquire(ctx, name, 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, lock.Release(ctx))
	_, err = locker.Acquire(ctx, name, 10*time.Second)
	assert.ErrorIs(t, err, ErrLockHeld)
	require.NoError(t, held.Release(ctx))
}

func TestRateLimiter_Enforced(t *testing.T) {
	client := openTestRedis(t)
	ctx := context.Background()
	limiter := NewRateLimiter(client, "camps-test-"+time.Now().Format("150405.000"))
	cfg := RateLimitConfig{Key: "burst", Limit: 2, Window: time.Minute}

	allowed, remaining, err := limiter.Allow(ctx, cfg)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)

	allowed, _, err = limiter.Allow(ctx, cfg)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, remaining, err = limiter.Allow(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
}
