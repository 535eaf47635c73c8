package fifo

import "time"

// EvictReason says why an entry left the cache on its own.
type EvictReason int

const (
	// ReasonCapacity marks the oldest entry dropped to make room.
	ReasonCapacity EvictReason = iota
	// ReasonExpired marks an entry purged by CleanupExpired.
	ReasonExpired
)

func (r EvictReason) String() string {
	switch r {
	case ReasonCapacity:
		return "capacity"
	case ReasonExpired:
		return "expired"
	default:
		return "unknown"
	}
}

type entry[V any] struct {
	value     V
	expiresAt time.Time // zero: never expires
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(now)
}

// Cache is a FIFO cache with optional TTL.
//
// Re-inserting an existing key refreshes its value and expiration but keeps
// its place in the eviction order. A fresh key first evicts the oldest keys
// until there is room, so Len never exceeds MaxSize after an insert.
type Cache[K comparable, V any] struct {
	index   map[K]entry[V]
	order   queue[K]
	maxSize int
	ttl     time.Duration
	clock   Clock
	onEvict func(key K, value V, reason EvictReason)
}

// New creates a cache holding at most maxSize entries. A negative maxSize is
// treated as zero, which yields a cache that drops every fresh insert.
func New[K comparable, V any](maxSize int, opts ...Option) *Cache[K, V] {
	o := options{clock: SystemClock()}
	for _, opt := range opts {
		opt(&o)
	}
	if maxSize < 0 {
		maxSize = 0
	}
	if o.ttl < 0 {
		o.ttl = 0
	}
	return &Cache[K, V]{
		index:   make(map[K]entry[V], maxSize),
		order:   newQueue[K](maxSize),
		maxSize: maxSize,
		ttl:     o.ttl,
		clock:   o.clock,
	}
}

// NewDefault creates a cache with DefaultMaxSize and DefaultTTL.
func NewDefault[K comparable, V any](opts ...Option) *Cache[K, V] {
	return New[K, V](DefaultMaxSize, append([]Option{WithTTL(DefaultTTL)}, opts...)...)
}

// SetEvictCallback registers fn to be called for every capacity eviction and
// every entry purged by CleanupExpired. Remove and Clear do not call it.
//
// fn runs while the cache is mid-update and must not modify the cache.
func (c *Cache[K, V]) SetEvictCallback(fn func(key K, value V, reason EvictReason)) {
	c.onEvict = fn
}

// Get returns the value for key if it is present and not expired.
// An entry whose expiration equals the current instant is expired.
// Get never modifies the cache.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V
	e, ok := c.index[key]
	if !ok || e.expired(c.clock.Now()) {
		return zero, false
	}
	return e.value, true
}

// Insert stores value under key.
func (c *Cache[K, V]) Insert(key K, value V) {
	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.clock.Now().Add(c.ttl)
	}

	if _, ok := c.index[key]; ok {
		c.index[key] = entry[V]{value: value, expiresAt: expiresAt}
		return
	}

	if c.maxSize == 0 {
		c.prune(0)
		c.evicted(key, value, ReasonCapacity)
		return
	}
	c.prune(c.maxSize - 1)
	c.order.pushBack(key)
	c.index[key] = entry[V]{value: value, expiresAt: expiresAt}
}

// InsertConverted converts key and value with the given functions and
// inserts the result.
func InsertConverted[K comparable, V any, KI, VI any](c *Cache[K, V], key KI, value VI, keyFn func(KI) K, valueFn func(VI) V) {
	c.Insert(keyFn(key), valueFn(value))
}

// Remove deletes key and returns its value. An entry that has expired but
// not yet been purged is still returned: expiration only affects Get.
//
// Remove scans the eviction order, so it costs O(Len).
func (c *Cache[K, V]) Remove(key K) (V, bool) {
	e, ok := c.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	delete(c.index, key)
	c.order.removeFirst(key)
	return e.value, true
}

// CleanupExpired purges every expired entry and returns how many were
// removed.
func (c *Cache[K, V]) CleanupExpired() int {
	if len(c.index) == 0 {
		return 0
	}
	now := c.clock.Now()
	return c.order.retain(func(key K) bool {
		e, ok := c.index[key]
		if !ok {
			return false
		}
		if !e.expired(now) {
			return true
		}
		delete(c.index, key)
		c.evicted(key, e.value, ReasonExpired)
		return false
	})
}

// Clear drops every entry. Capacity and TTL are kept.
func (c *Cache[K, V]) Clear() {
	clear(c.index)
	c.order.clear()
}

// Len reports the number of stored entries, including expired entries that
// have not been purged.
func (c *Cache[K, V]) Len() int { return len(c.index) }

// IsEmpty reports whether Len is zero.
func (c *Cache[K, V]) IsEmpty() bool { return len(c.index) == 0 }

// Keys returns the stored keys, oldest first.
func (c *Cache[K, V]) Keys() []K { return c.order.keys() }

func (c *Cache[K, V]) MaxSize() int { return c.maxSize }

// SetMaxSize changes the capacity. With prune, surplus entries are evicted
// now; otherwise the cache may stay above capacity until the next fresh
// insert.
func (c *Cache[K, V]) SetMaxSize(maxSize int, prune bool) {
	if maxSize < 0 {
		maxSize = 0
	}
	c.maxSize = maxSize
	if prune {
		c.prune(maxSize)
	}
}

// DefaultTTL returns the TTL applied to inserts, zero when disabled.
func (c *Cache[K, V]) DefaultTTL() time.Duration { return c.ttl }

func (c *Cache[K, V]) TTLEnabled() bool { return c.ttl > 0 }

// SetDefaultTTL changes the TTL for later inserts and updates. Stored
// entries keep their expiration. A ttl <= 0 disables expiration for later
// writes.
func (c *Cache[K, V]) SetDefaultTTL(ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	c.ttl = ttl
}

// prune evicts from the front until at most limit entries remain.
func (c *Cache[K, V]) prune(limit int) {
	for c.order.len() > limit {
		key, _ := c.order.popFront()
		e, ok := c.index[key]
		if !ok {
			continue
		}
		delete(c.index, key)
		c.evicted(key, e.value, ReasonCapacity)
	}
}

func (c *Cache[K, V]) evicted(key K, value V, reason EvictReason) {
	if c.onEvict != nil {
		c.onEvict(key, value, reason)
	}
}
