package quarry

// cache.go implements the shared block cache handle.
//
// A Cache is an opaque, reference-counted resource. One instance may back
// any number of Options and open databases; every open takes a reference
// and every close drops one, and the underlying engine cache is destroyed
// when the last owner lets go. The caller's own reference is dropped by
// Release.

import (
	"sync/atomic"

	"github.com/cockroachdb/pebble"
)

// Cache is a shared block cache for table data. Safe for concurrent use;
// the engine synchronizes all access internally.
type Cache struct {
	capacity          int64
	shardBits         int
	evictionScanLimit int

	handle   *pebble.Cache
	released atomic.Bool
}

// CacheOption refines cache construction.
type CacheOption func(*Cache)

// WithShardBits requests 2^bits internal shards. The engine build shards
// automatically based on CPU count; the requested value is retained on the
// handle for introspection and applied where the engine supports it.
func WithShardBits(bits int) CacheOption {
	return func(c *Cache) { c.shardBits = bits }
}

// WithEvictionScanLimit bounds how many entries an eviction pass may
// inspect. Retained for introspection; the engine's clock-pro eviction has
// no scan parameter.
func WithEvictionScanLimit(n int) CacheOption {
	return func(c *Cache) { c.evictionScanLimit = n }
}

// NewLRUCache creates a bounded block cache with the given capacity in
// bytes. The returned handle holds one reference; call Release when this
// handle is no longer needed. Databases opened against it keep it alive
// independently.
func NewLRUCache(capacity int64, opts ...CacheOption) *Cache {
	c := &Cache{
		capacity:  capacity,
		shardBits: -1,
		handle:    pebble.NewCache(capacity),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Capacity returns the configured capacity in bytes.
func (c *Cache) Capacity() int64 { return c.capacity }

// Release drops the caller's reference. Idempotent. The cache itself is
// destroyed once every open database sharing it has closed as well.
func (c *Cache) Release() {
	if c.released.CompareAndSwap(false, true) {
		c.handle.Unref()
	}
}

// engineCache exposes the engine handle for Open. The engine takes its own
// reference when a database opens against the cache and drops it when that
// database closes; this handle's reference is the caller's, dropped by
// Release.
func (c *Cache) engineCache() *pebble.Cache {
	return c.handle
}
