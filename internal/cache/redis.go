// Package cache holds the short-lived auth state shared between API
// instances: seen challenge nonces and revoked session ids.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	noncePrefix   = "vivoor:nonce:"
	revokedPrefix = "vivoor:revoked:"
)

// ErrCacheOperationFailed wraps every redis failure.
var ErrCacheOperationFailed = errors.New("cache: operation failed")

// RedisCache implements the nonce and revocation caches on redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisClient parses url and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(options)
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// NewRedisCache creates a new RedisCache
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Remember records nonce for ttl. It reports false when the nonce was
// already present.
func (c *RedisCache) Remember(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, noncePrefix+nonce, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCacheOperationFailed, err)
	}
	return ok, nil
}

// Revoke marks a session id as logged out until ttl elapses.
func (c *RedisCache) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if err := c.client.Set(ctx, revokedPrefix+sessionID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheOperationFailed, err)
	}
	return nil
}

// IsRevoked reports whether sessionID was revoked.
func (c *RedisCache) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	_, err := c.client.Get(ctx, revokedPrefix+sessionID).Result()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", ErrCacheOperationFailed, err)
}

// Client returns the underlying client so the event stream can share it.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Close closes the redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
