// Package fallback holds the degraded substitutes served when a breaker is
// open or a call's retry budget is exhausted. One substitute is registered
// per guarded capability; capabilities without one surface Unavailable
// instead of a silent empty success.
package fallback

import (
	"context"
	"sort"
	"sync"

	"grantpath/internal/resilience"
)

// Func produces a degraded substitute result for one capability. It must be
// deterministic, side-effect-light, and safe for concurrent invocation, since
// many callers may be degraded at once.
type Func func(ctx context.Context, operation string, payload any) (any, error)

// Registry maps capability kinds to their fallback. Registration happens at
// startup; lookups run on the hot path under a read lock.
type Registry struct {
	mu sync.RWMutex
	m  map[resilience.Capability]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{m: make(map[resilience.Capability]Func)}
}

// Register installs the fallback for a capability, replacing any previous one.
func (r *Registry) Register(capability resilience.Capability, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[capability] = fn
}

// Get returns the fallback for a capability, or false when none is registered.
func (r *Registry) Get(capability resilience.Capability) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.m[capability]
	return fn, ok
}

// Capabilities lists the registered capability kinds in a stable order.
func (r *Registry) Capabilities() []resilience.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]resilience.Capability, 0, len(r.m))
	for c := range r.m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
