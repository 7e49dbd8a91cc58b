package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// TTLCache is a small typed in-memory cache with per-item expiry, used for lookups that do not need
// single-flight or LRU bounds.
type TTLCache[V any] struct {
	store *gocache.Cache
}

// NewTTLCache creates a cache whose items expire after defaultTTL unless set otherwise. Expired items
// are purged every cleanupInterval.
func NewTTLCache[V any](defaultTTL, cleanupInterval time.Duration) *TTLCache[V] {
	return &TTLCache[V]{store: gocache.New(defaultTTL, cleanupInterval)}
}

// Get retrieves a cached item if present and not expired.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	raw, ok := c.store.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	value, ok := raw.(V)
	return value, ok
}

// Set stores a value with the default TTL.
func (c *TTLCache[V]) Set(key string, value V) {
	c.store.SetDefault(key, value)
}

// SetWithTTL stores a value with an explicit TTL.
func (c *TTLCache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.store.Set(key, value, ttl)
}

// Delete removes an entry.
func (c *TTLCache[V]) Delete(key string) {
	c.store.Delete(key)
}

// Len returns the number of stored items, including expired ones not yet purged.
func (c *TTLCache[V]) Len() int {
	return c.store.ItemCount()
}

// Flush drops every item.
func (c *TTLCache[V]) Flush() {
	c.store.Flush()
}
