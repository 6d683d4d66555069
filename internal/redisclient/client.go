package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/rate_limit.lua
var rateLimitScript string

type Client struct {
	rdb       *redis.Client
	rateLimit *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:       rdb,
		rateLimit: redis.NewScript(rateLimitScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AllowInWindow counts one request against the key's fixed window and
// reports whether it is within the limit. The count and the expiry are
// applied atomically by the Lua script.
func (c *Client) AllowInWindow(ctx context.Context, key string, window time.Duration, limit int) (bool, error) {
	result, err := c.rateLimit.Run(ctx, c.rdb,
		[]string{fmt.Sprintf("ratelimit:%s", key)},
		window.Milliseconds(), limit).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit script failed: %w", err)
	}

	allowed, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}

	return allowed == 1, nil
}

// FixedWindowLimiter adapts the client to the rate limiter interface
// the redemption path consumes
type FixedWindowLimiter struct {
	client *Client
	window time.Duration
	limit  int
}

// NewFixedWindowLimiter creates a limiter with the given window and cap
func NewFixedWindowLimiter(client *Client, window time.Duration, limit int) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		client: client,
		window: window,
		limit:  limit,
	}
}

// Allow reports whether the key may proceed in the current window
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.client.AllowInWindow(ctx, key, l.window, l.limit)
}
