package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is the single-instance fallback when no redis is configured.
type MemoryCache struct {
	mu      sync.Mutex
	nonces  map[string]time.Time
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemoryCache creates a new MemoryCache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		nonces:  make(map[string]time.Time),
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Remember records nonce for ttl. It reports false when the nonce is still live.
func (c *MemoryCache) Remember(_ context.Context, nonce string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweep(now)
	if exp, ok := c.nonces[nonce]; ok && now.Before(exp) {
		return false, nil
	}
	c.nonces[nonce] = now.Add(ttl)
	return true, nil
}

// Revoke marks a session id as logged out until ttl elapses.
func (c *MemoryCache) Revoke(_ context.Context, sessionID string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.revoked[sessionID] = c.now().Add(ttl)
	return nil
}

// IsRevoked reports whether sessionID was revoked and the mark is still live.
func (c *MemoryCache) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	exp, ok := c.revoked[sessionID]
	return ok && c.now().Before(exp), nil
}

// sweep drops expired entries. Caller holds mu.
func (c *MemoryCache) sweep(now time.Time) {
	for k, exp := range c.nonces {
		if !now.Before(exp) {
			delete(c.nonces, k)
		}
	}
	for k, exp := range c.revoked {
		if !now.Before(exp) {
			delete(c.revoked, k)
		}
	}
}
