package eventsourcing

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// ProjectionCache memoizes projection values. Entries outlive the batch
// that loaded them: a committed batch leaves them in place, so a later
// batch may be served a value loaded under an earlier store transaction.
// Clear must be called on any batch abort so in-memory state cannot
// diverge from a rolled-back store transaction; the cache is not safe for
// concurrent batches (see the driver's serial scheduling model).
type ProjectionCache[K comparable, V any] interface {
	// GetOrLoad returns the cached value for key, invoking loader on a
	// cache miss. loader returns (nil, nil) when the store has no row
	// for key. A successful loader result is memoized.
	GetOrLoad(key K, loader func() (*V, error)) (*V, error)
	// Add stores value under its key, overwriting any cached entry.
	Add(key K, value *V)
	// Remove evicts key, if present.
	Remove(key K)
	// Clear evicts every entry.
	Clear()
}

// PassthroughCache never memoizes: every GetOrLoad invokes loader, and
// Add/Remove/Clear are no-ops. It is the safe default when no cache is
// configured — there is no state to invalidate.
type PassthroughCache[K comparable, V any] struct{}

// NewPassthroughCache constructs a PassthroughCache.
func NewPassthroughCache[K comparable, V any]() *PassthroughCache[K, V] {
	return &PassthroughCache[K, V]{}
}

func (c *PassthroughCache[K, V]) GetOrLoad(_ K, loader func() (*V, error)) (*V, error) {
	return loader()
}

func (c *PassthroughCache[K, V]) Add(K, *V)  {}
func (c *PassthroughCache[K, V]) Remove(K)   {}
func (c *PassthroughCache[K, V]) Clear()     {}

// InMemoryCache memoizes successful loads in a bounded LRU. Clear wipes
// every entry and is called by the driver on any batch abort.
type InMemoryCache[K comparable, V any] struct {
	lru *lru.Cache[K, *V]
}

// NewInMemoryCache constructs an InMemoryCache with the given capacity.
// A capacity <= 0 is rejected by the underlying LRU implementation, so it
// is raised to a sane minimum instead of panicking at construction.
func NewInMemoryCache[K comparable, V any](capacity int) *InMemoryCache[K, V] {
	if capacity <= 0 {
		capacity = 1024
	}
	c, err := lru.New[K, *V](capacity)
	if err != nil {
		// New only fails for capacity <= 0, already guarded above.
		panic(err)
	}
	return &InMemoryCache[K, V]{lru: c}
}

func (c *InMemoryCache[K, V]) GetOrLoad(key K, loader func() (*V, error)) (*V, error) {
	if value, ok := c.lru.Get(key); ok {
		return value, nil
	}
	value, err := loader()
	if err != nil {
		return nil, err
	}
	if value != nil {
		c.lru.Add(key, value)
	}
	return value, nil
}

func (c *InMemoryCache[K, V]) Add(key K, value *V) {
	c.lru.Add(key, value)
}

func (c *InMemoryCache[K, V]) Remove(key K) {
	c.lru.Remove(key)
}

func (c *InMemoryCache[K, V]) Clear() {
	c.lru.Purge()
}
