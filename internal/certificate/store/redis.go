package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"certledger/internal/certificate/ports"
	"certledger/pkg/platform/sentinel"
)

// RedisCache stores blobs in Redis with SET EX semantics. The client
// lifecycle is managed by the caller.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache. A zero TTL stores keys
// without expiry.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

var _ ports.CacheStore = (*RedisCache)(nil)

// Get returns sentinel.ErrNotFound when the key is absent or expired.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, errors.Join(sentinel.ErrUnavailable, err)
	}
	return value, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		return errors.Join(sentinel.ErrUnavailable, err)
	}
	return nil
}

func (c *RedisCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
