package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "replay:"

// RedisStore is a replay store backed by Redis, shared across gateway
// instances. SETNX gives the atomic insert-if-absent; the value is the
// insertion timestamp for operational inspection.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration // 0 = keep forever
}

// NewRedisStore creates a store backed by Redis.
func NewRedisStore(addr, password string, db int, ttl time.Duration) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: rdb, ttl: ttl}
}

// Seen reports whether the hash was already consumed.
func (s *RedisStore) Seen(ctx context.Context, txHash string) (bool, error) {
	n, err := s.client.Exists(ctx, keyPrefix+txHash).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Insert marks the hash consumed. Returns false if another instance got
// there first.
func (s *RedisStore) Insert(ctx context.Context, txHash string) (bool, error) {
	ok, err := s.client.SetNX(ctx, keyPrefix+txHash, time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Close shuts down the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
