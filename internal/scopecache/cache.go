// Package scopecache memoizes metric bundles per data-access scope within a
// single report run, so recipients sharing a scope trigger one computation.
package scopecache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/giftly/metrics-reporter/internal/domain"
)

// ComputeFunc computes the metric bundle for one scope.
type ComputeFunc func(ctx context.Context) (*domain.MetricBundle, error)

// Cache is a per-run bundle cache with a single-flight guarantee: concurrent
// requesters of the same uncomputed scope key wait for the first computation
// instead of duplicating it. Distinct keys never block each other.
//
// The cache lives for one run and is discarded afterward; there is no
// eviction, because a stored bundle is valid for exactly that run's windows.
// Failed computations are stored too: once a scope's bundle could not be
// computed, every recipient sharing that scope observes the same error
// without re-invoking the fetchers.
type Cache struct {
	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	bundle *domain.MetricBundle
	err    error
}

// New creates an empty per-run cache.
func New() *Cache {
	return &Cache{entries: make(map[string]entry)}
}

// GetOrCompute returns the bundle for the scope, computing it via fn on
// first use. Safe for concurrent use.
func (c *Cache) GetOrCompute(ctx context.Context, scope domain.Scope, fn ComputeFunc) (*domain.MetricBundle, error) {
	key := scope.Key()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return e.bundle, e.err
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		b, err := fn(ctx)
		c.mu.Lock()
		c.entries[key] = entry{bundle: b, err: err}
		c.mu.Unlock()
		return b, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.MetricBundle), nil
}

// Len returns the number of distinct scopes computed so far, failures
// included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
