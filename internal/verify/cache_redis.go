package verify

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"brgycert/internal/platform/redis"
)

// RedisCache adapts the platform redis client to the Cache interface.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache returns nil when no redis client is configured, so callers
// can skip the WithCache option entirely.
func NewRedisCache(client *redis.Client) *RedisCache {
	if client == nil {
		return nil
	}
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	return val, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}
