// Package cache provides an in-process key/value store with per-entry expiry.
package cache

import (
	"sync"
	"time"
)

// DefaultTTL is used when New is given a zero TTL.
const DefaultTTL = 90 * time.Second

// Cache is a TTL cache safe for concurrent use.
//
// Expired entries are removed only when they are looked up or overwritten;
// there is no background sweep. Expiry is compared against the monotonic
// clock reading carried by time.Now, so wall-clock adjustments do not
// shorten or extend an entry's lifetime.
type Cache[V any] struct {
	defaultTTL time.Duration
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]entry[V]
	hits    uint64
	misses  uint64
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithNow overrides the time source. Intended for tests.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New creates a cache whose Set uses defaultTTL.
func New[V any](defaultTTL time.Duration, opts ...Option) *Cache[V] {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &Cache[V]{
		defaultTTL: defaultTTL,
		now:        o.now,
		entries:    make(map[string]entry[V]),
	}
}

// Get returns the value stored under key if it has not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}

	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		var zero V
		return zero, false
	}

	c.hits++
	return e.value, true
}

// Set stores value under key with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores value under key, replacing any previous value and expiry.
// A non-positive ttl falls back to the default TTL.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

// Invalidate removes key immediately.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// Len returns the number of stored entries, including expired ones not yet
// looked up.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats contains cache statistics.
type Stats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
	}
}
