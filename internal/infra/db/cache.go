package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"grantpath/internal/resilience"
	"grantpath/internal/resilience/fallback"
)

// ReadCache is the read-only degraded path for the primary store: the last
// good result of each guarded read, served when the store is unavailable.
// Writes never go through the cache; a degraded store is read-only.
type ReadCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	value    any
	storedAt time.Time
}

// NewReadCache creates a cache whose entries expire after ttl.
func NewReadCache(ttl time.Duration) *ReadCache {
	return &ReadCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Put stores the latest good result for a key.
func (c *ReadCache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, storedAt: c.now()}
}

// Get returns the cached value for a key if present and fresh.
func (c *ReadCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.storedAt) > c.ttl {
		return nil, false
	}
	return e.value, true
}

// Key builds the cache key for a guarded read.
func Key(operation string, payload any) string {
	return fmt.Sprintf("%s:%v", operation, payload)
}

// Fallback returns the primary-store fallback: serve the cached result for
// the operation, or fail so the gateway surfaces Unavailable on a cold cache.
func (c *ReadCache) Fallback() fallback.Func {
	return func(_ context.Context, operation string, payload any) (any, error) {
		if v, ok := c.Get(Key(operation, payload)); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read cache: no entry for %s: %w", operation, resilience.ErrStoreUnavailable)
	}
}
