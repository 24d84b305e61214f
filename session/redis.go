package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces session keys.
const DefaultRedisPrefix = "agrogate:session:"

// RedisBackend stores sessions as JSON strings with a TTL.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBackend creates a Redis-backed session backend. An empty prefix
// selects DefaultRedisPrefix.
func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (r *RedisBackend) key(id string) string {
	return r.prefix + id
}

func (r *RedisBackend) Save(ctx context.Context, id string, data Data, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("redis: ttl must be positive")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("redis: marshal: %w", err)
	}
	return r.client.Set(ctx, r.key(id), raw, ttl).Err()
}

func (r *RedisBackend) Get(ctx context.Context, id string) (*Data, error) {
	val, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var d Data
	if err := json.Unmarshal(val, &d); err != nil {
		return nil, fmt.Errorf("redis: unmarshal: %w", err)
	}
	return &d, nil
}

func (r *RedisBackend) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

// Ping checks connectivity.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
