package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
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
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}, nil
}

// Ping checks Redis connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func eventLockKey(eventID string) string {
	return fmt.Sprintf("lock:event:%s", eventID)
}

func tenantKey(subscriptionID string) string {
	return fmt.Sprintf("subscription-tenant:%s", subscriptionID)
}

// AcquireEventLock takes the in-flight lock for an event. The returned token
// identifies this holder and is required to release the lock.
func (c *Client) AcquireEventLock(ctx context.Context, eventID string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	acquired, err := c.rdb.SetNX(ctx, eventLockKey(eventID), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire event lock failed: %w", err)
	}
	if !acquired {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseEventLock atomically releases the lock if token still owns it. A lock
// that expired and was taken by another holder is left alone.
func (c *Client) ReleaseEventLock(ctx context.Context, eventID, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{eventLockKey(eventID)}, token).Result()
	if err != nil {
		return fmt.Errorf("release event lock script failed: %w", err)
	}
	return nil
}

// GetSubscriptionTenant reads a cached subscription to tenant resolution
func (c *Client) GetSubscriptionTenant(ctx context.Context, subscriptionID string) (string, bool, error) {
	tenantID, err := c.rdb.Get(ctx, tenantKey(subscriptionID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return tenantID, true, nil
}

// SetSubscriptionTenant caches a subscription to tenant resolution with TTL
func (c *Client) SetSubscriptionTenant(ctx context.Context, subscriptionID, tenantID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, tenantKey(subscriptionID), tenantID, ttl).Err()
}
