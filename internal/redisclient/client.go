package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// idempotencyPending marks a claimed key whose request has not finished
const idempotencyPending = "pending"

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and checks the connection
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

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// CacheKey builds the key of a cached view: cache:<tenant>:<resource>:<suffix>
func CacheKey(tenantID, resource, suffix string) string {
	return fmt.Sprintf("cache:%s:%s:%s", tenantID, resource, suffix)
}

func blacklistKey(token string) string {
	return "blacklist:" + token
}

func idempotencyKey(tenantID, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", tenantID, key)
}

// GetJSON loads a cached value into dest. It reports false on a miss.
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache entry %s is corrupt: %w", key, err)
	}
	return true, nil
}

// SetJSON stores value as JSON with a TTL
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

// InvalidateTenant deletes every cached view of the given resources of a tenant
func (c *Client) InvalidateTenant(ctx context.Context, tenantID string, resources ...string) error {
	for _, resource := range resources {
		pattern := CacheKey(tenantID, resource, "*")
		iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()

		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("cache scan failed: %w", err)
		}
		if len(keys) == 0 {
			continue
		}
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("cache invalidation failed: %w", err)
		}
	}
	return nil
}

// BlacklistToken rejects token until it would have expired anyway
func (c *Client) BlacklistToken(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, blacklistKey(token), "1", ttl).Err()
}

// IsBlacklisted reports whether token was revoked
func (c *Client) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	n, err := c.rdb.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClaimIdempotencyKey marks key as in progress. It reports false when the
// key was already claimed by an earlier request.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, tenantID, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, idempotencyKey(tenantID, key), idempotencyPending, ttl).Result()
}

// CompleteIdempotencyKey stores the id of the resource the request created
func (c *Client) CompleteIdempotencyKey(ctx context.Context, tenantID, key, resourceID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(tenantID, key), resourceID, ttl).Err()
}

// ReleaseIdempotencyKey forgets a claim whose request failed
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, tenantID, key string) error {
	return c.rdb.Del(ctx, idempotencyKey(tenantID, key)).Err()
}

// IdempotencyResult returns the resource id stored for key. It reports
// false while the original request is still running.
func (c *Client) IdempotencyResult(ctx context.Context, tenantID, key string) (string, bool, error) {
	value, err := c.rdb.Get(ctx, idempotencyKey(tenantID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if value == idempotencyPending {
		return "", false, nil
	}
	return value, true, nil
}
