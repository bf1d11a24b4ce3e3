package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"grantpath/internal/resilience/fallback"
)

// ResultCache keeps the last good hit set per normalized query so the
// degraded path can answer "results may be incomplete" instead of nothing.
type ResultCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cachedResult
	now     func() time.Time
}

type cachedResult struct {
	hits     []GrantHit
	storedAt time.Time
}

// NewResultCache creates a cache whose entries expire after ttl.
func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		ttl:     ttl,
		entries: make(map[string]cachedResult),
		now:     time.Now,
	}
}

// Put stores the hit set for a query.
func (c *ResultCache) Put(query string, hits []GrantHit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[normalize(query)] = cachedResult{hits: hits, storedAt: c.now()}
}

// Get returns the cached hits for a query if present and fresh.
func (c *ResultCache) Get(query string) ([]GrantHit, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[normalize(query)]
	if !ok || c.now().Sub(e.storedAt) > c.ttl {
		return nil, false
	}
	return e.hits, true
}

// Fallback is the vector-search degraded substitute: cached hits for the
// same query when available, otherwise an explicitly empty result set.
func (c *ResultCache) Fallback() fallback.Func {
	return func(_ context.Context, _ string, payload any) (any, error) {
		if q, ok := payload.(Query); ok {
			if hits, found := c.Get(q.Text); found {
				return hits, nil
			}
		}
		return []GrantHit{}, nil
	}
}

func normalize(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}
