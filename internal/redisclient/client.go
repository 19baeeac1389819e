package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
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

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// StoreLoginToken stores a single-use dashboard login token bound to
// one email. The token disappears on redemption or when the TTL runs
// out, whichever comes first.
func (c *Client) StoreLoginToken(ctx context.Context, token, email string, ttl time.Duration) error {
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("auth:link:%s", token), email, ttl).Result()
	if err != nil {
		return fmt.Errorf("store login token failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("login token collision: %s", token)
	}
	return nil
}

// ConsumeLoginToken redeems a login token, removing it atomically.
// Returns ("", nil) when the token is unknown, expired, or already
// used.
func (c *Client) ConsumeLoginToken(ctx context.Context, token string) (string, error) {
	email, err := c.rdb.GetDel(ctx, fmt.Sprintf("auth:link:%s", token)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("consume login token failed: %w", err)
	}
	return email, nil
}

// AcquireSettlementLock takes the per-order settlement lock. Used only
// when the idempotency guard is enabled.
func (c *Client) AcquireSettlementLock(ctx context.Context, orderID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:settle:%s", orderID), "1", ttl).Result()
}

// ReleaseSettlementLock releases the per-order settlement lock.
func (c *Client) ReleaseSettlementLock(ctx context.Context, orderID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:settle:%s", orderID)).Err()
}
