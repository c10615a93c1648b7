// Package cache provides the in-process TTL cache shared by the Ollama tools.
//
// A Cache holds one exclusive lock around every operation, including Get, so a
// reader can never observe a half-written entry and two writers never interleave
// on the same key. Expired entries are evicted lazily by Get; PruneExpired (run
// periodically by a Sweeper) only bounds memory.
package cache

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL is used when a Cache is created without an explicit default.
const DefaultTTL = 300 * time.Second

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Cache is a key->value store with per-entry expiry.
type Cache[V any] struct {
	mu         sync.Mutex
	entries    map[string]entry[V]
	defaultTTL time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now    func() time.Time
	logger zerolog.Logger
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLogger sets the logger used for eviction diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates an empty cache. A non-positive defaultTTL falls back to DefaultTTL.
func New[V any](defaultTTL time.Duration, opts ...Option) *Cache[V] {
	o := options{
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Cache[V]{
		entries:    make(map[string]entry[V]),
		defaultTTL: defaultTTL,
		now:        o.now,
		logger:     o.logger.With().Str("component", "cache").Logger(),
	}
}

// DefaultTTL returns the TTL applied by Set.
func (c *Cache[V]) DefaultTTL() time.Duration {
	return c.defaultTTL
}

// Get returns the value stored under key if it has not expired.
// A present-but-expired entry is removed.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		c.logger.Debug().Str("key", key).Msg("Evicted expired cache entry")
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, 0)
}

// SetWithTTL stores value under key, replacing any existing entry.
// A non-positive ttl uses the cache default.
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

// Delete removes key. Deleting a missing key is a no-op.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// PruneExpired removes all expired entries and returns how many were removed.
func (c *Cache[V]) PruneExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug().Int("count", removed).Msg("Cleaned up expired cache entries")
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
