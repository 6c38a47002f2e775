package backpressure

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills and consumes one token atomically so that
// concurrent callers across processes never double-spend.
// KEYS[1] = bucket key   ARGV[1] = refill rate (tokens/sec)
// ARGV[2] = capacity     ARGV[3] = current unix time (fractional seconds)
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call("HMGET", key, "tokens", "stamp")
local tokens = tonumber(state[1])
local stamp = tonumber(state[2])

if not tokens or not stamp then
    tokens = capacity
    stamp = now
end

local elapsed = now - stamp
if elapsed > 0 then
    tokens = tokens + elapsed * rate
    if tokens > capacity then
        tokens = capacity
    end
    stamp = now
end

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "stamp", stamp)
redis.call("EXPIRE", key, 60)

return allowed
`)

// RedisLimiter shares token buckets across processes via Redis.
type RedisLimiter struct {
	client *redis.Client
	rps    float64
	burst  int
}

// NewRedisLimiter wraps an existing Redis client with the given refill
// rate and burst capacity.
func NewRedisLimiter(client *redis.Client, rps float64, burst int) *RedisLimiter {
	return &RedisLimiter{client: client, rps: rps, burst: burst}
}

// Allow reports whether identity has budget for one request.
func (l *RedisLimiter) Allow(ctx context.Context, identity string) (bool, error) {
	key := fmt.Sprintf("backpressure:%s", identity)
	now := float64(time.Now().UnixMicro()) / 1e6

	allowed, err := tokenBucketScript.Run(ctx, l.client, []string{key}, l.rps, l.burst, now).Int()
	if err != nil {
		return false, fmt.Errorf("redis limiter: %w", err)
	}
	return allowed == 1, nil
}
