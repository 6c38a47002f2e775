package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists idempotency records in Redis. SET NX gives the same
// first-writer-wins guarantee as the SQL primary key, and Redis handles
// expiry natively via the key TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing Redis client. A ttl of zero stores
// records without expiry.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

// Get returns the record for key, reporting whether one exists.
func (s *RedisStore) Get(ctx context.Context, key string) (Record, bool, error) {
	raw, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("redis get idempotency record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode idempotency record: %w", err)
	}
	return rec, true, nil
}

// PutIfAbsent inserts rec unless the key is already taken.
func (s *RedisStore) PutIfAbsent(ctx context.Context, rec Record) (bool, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("encode idempotency record: %w", err)
	}
	inserted, err := s.client.SetNX(ctx, redisKey(rec.Key), payload, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis set idempotency record: %w", err)
	}
	return inserted, nil
}
