package backpressure

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_BurstThenDeny(t *testing.T) {
	// Zero refill rate makes the outcome deterministic: exactly burst
	// requests succeed, then everything is denied.
	l := NewMemoryLimiter(0, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := l.Allow(ctx, "scanner-1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d within burst must pass", i)
	}

	allowed, err := l.Allow(ctx, "scanner-1")
	require.NoError(t, err)
	assert.False(t, allowed, "request beyond burst must be denied")
}

func TestMemoryLimiter_IdentitiesAreIndependent(t *testing.T) {
	l := NewMemoryLimiter(0, 1)
	ctx := context.Background()

	allowed, err := l.Allow(ctx, "scanner-1")
	require.NoError(t, err)
	require.True(t, allowed)

	// scanner-1 is exhausted, scanner-2 has its own bucket.
	allowed, err = l.Allow(ctx, "scanner-1")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = l.Allow(ctx, "scanner-2")
	require.NoError(t, err)
	assert.True(t, allowed)
}

// TestRedisLimiter_Integration requires a running Redis.
// We skip if connection fails.
func TestRedisLimiter_Integration(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	l := NewRedisLimiter(client, 1, 1) // 1 token/sec, burst 1
	identity := "test-redis-scanner"

	allowed, err := l.Allow(ctx, identity)
	require.NoError(t, err)
	assert.True(t, allowed, "fresh bucket must allow")

	allowed, err = l.Allow(ctx, identity)
	require.NoError(t, err)
	assert.False(t, allowed, "immediate retry must be rate limited")

	time.Sleep(1100 * time.Millisecond)
	allowed, err = l.Allow(ctx, identity)
	require.NoError(t, err)
	assert.True(t, allowed, "bucket must refill after a second")
}
