// Package cache holds a value produced by a loader for a fixed TTL.
package cache

import (
	"context"
	"sync"
	"time"
)

// LoadFunc produces a fresh value.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// Cache reloads its value when the TTL has elapsed. A failed reload keeps
// the previous value (if any) and leaves the entry expired, so the next Get
// retries.
type Cache[T any] struct {
	load LoadFunc[T]
	ttl  time.Duration
	now  func() time.Time

	mu        sync.Mutex
	value     T
	loaded    bool
	expiresAt time.Time
}

// Option configures a Cache.
type Option[T any] func(*Cache[T])

// WithClock replaces time.Now, for tests.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *Cache[T]) { c.now = now }
}

// New returns a Cache that calls load at most once per ttl.
func New[T any](ttl time.Duration, load LoadFunc[T], opts ...Option[T]) *Cache[T] {
	c := &Cache[T]{load: load, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value, reloading it when expired. When a reload
// fails and an older value exists, the older value is returned along with
// the error.
func (c *Cache[T]) Get(ctx context.Context) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded && c.now().Before(c.expiresAt) {
		return c.value, nil
	}
	v, err := c.load(ctx)
	if err != nil {
		return c.value, err
	}
	c.value = v
	c.loaded = true
	c.expiresAt = c.now().Add(c.ttl)
	return v, nil
}

// Invalidate forces the next Get to reload.
func (c *Cache[T]) Invalidate() {
	c.mu.Lock()
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

// ExpiresAt reports when the current value goes stale. Zero means nothing
// is cached.
func (c *Cache[T]) ExpiresAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return time.Time{}
	}
	return c.expiresAt
}
