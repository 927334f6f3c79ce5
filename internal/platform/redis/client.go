package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Client wraps go-redis with health checking. Redis is optional here; callers
// receive nil when no URL is configured and must treat the cache as absent.
type Client struct {
	*redis.Client
}

// New creates a Redis client from a URL. Returns (nil, nil) when the URL is
// empty.
func New(url string) (*Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client}, nil
}

// Health checks the connection.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
