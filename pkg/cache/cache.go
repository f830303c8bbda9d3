// Package cache provides a small TTL cache with in-flight request
// deduplication. It replaces ad hoc module-level caches: the value, its
// fetch time and the in-flight call are explicit state with a defined
// invalidation API, so tests can reset it deterministically.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fetcher loads a value on cache miss.
type Fetcher[T any] func(ctx context.Context) (T, error)

type entry[T any] struct {
	value     T
	fetchedAt time.Time
}

// Cache stores values by key for a fixed TTL. Concurrent misses for the
// same key share one fetch via singleflight.
type Cache[T any] struct {
	ttl   time.Duration
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry[T]

	// now is swappable in tests.
	now func() time.Time
}

// New builds a cache with the given TTL. A zero TTL caches forever until
// invalidated.
func New[T any](ttl time.Duration) *Cache[T] {
	return &Cache[T]{
		ttl:     ttl,
		entries: make(map[string]entry[T]),
		now:     time.Now,
	}
}

// Get returns the cached value for key, fetching it when absent or stale.
func (c *Cache[T]) Get(ctx context.Context, key string, fetch Fetcher[T]) (T, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && !c.stale(e) {
		return e.value, nil
	}

	value, err, _ := c.group.Do(key, func() (any, error) {
		// Another caller may have refreshed while we waited on the group.
		c.mu.RLock()
		e, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && !c.stale(e) {
			return e.value, nil
		}

		fetched, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = entry[T]{value: fetched, fetchedAt: c.now()}
		c.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return value.(T), nil
}

// Peek returns the cached value without fetching. The second result is
// false when the key is absent or stale.
func (c *Cache[T]) Peek(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.stale(e) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Invalidate drops one key.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Reset drops every entry.
func (c *Cache[T]) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]entry[T])
	c.mu.Unlock()
}

func (c *Cache[T]) stale(e entry[T]) bool {
	if c.ttl <= 0 {
		return false
	}
	return c.now().Sub(e.fetchedAt) >= c.ttl
}
