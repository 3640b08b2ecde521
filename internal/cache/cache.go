package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultLoadTimeout bounds a shared load once it is detached from the
// caller that started it
const DefaultLoadTimeout = 30 * time.Second

// LoadFunc produces a value for a missing key. A zero expiry means the
// cache's default TTL applies.
type LoadFunc[V any] func(ctx context.Context) (V, time.Time, error)

// Cache provides a simple in-memory cache with expiration and
// deduplicated loads per key
type Cache[V any] struct {
	data  map[string]V
	times map[string]time.Time
	ttl   time.Duration
	mu    sync.RWMutex
	group singleflight.Group

	// loadTimeout bounds each shared load
	loadTimeout time.Duration

	// now is replaced in tests
	now func() time.Time
}

// NewCache creates a new cache with the specified TTL. A TTL of zero keeps
// entries until they are deleted or given an explicit expiry.
func NewCache[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		data:  make(map[string]V),
		times: make(map[string]time.Time),
		ttl:   ttl,
		now:   time.Now,

		loadTimeout: DefaultLoadTimeout,
	}
}

// Get retrieves a value from the cache
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	val, exists := c.data[key]
	if !exists {
		var zero V
		return zero, false
	}

	// Check if expired
	if expires, ok := c.times[key]; ok && !c.now().Before(expires) {
		var zero V
		return zero, false
	}

	return val, true
}

// Set stores a value in the cache using the default TTL
func (c *Cache[V]) Set(key string, val V) {
	c.SetWithExpiry(key, val, time.Time{})
}

// SetWithExpiry stores a value that expires at the given time
func (c *Cache[V]) SetWithExpiry(key string, val V, expires time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = val
	switch {
	case !expires.IsZero():
		c.times[key] = expires
	case c.ttl > 0:
		c.times[key] = c.now().Add(c.ttl)
	default:
		delete(c.times, key)
	}
}

// Delete removes a key
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
	delete(c.times, key)
}

// GetOrLoad returns the cached value for key or calls load. Concurrent
// callers for the same key share a single load. The load runs detached from
// any one caller's cancellation, so a caller that gives up returns ctx.Err()
// without failing the others still waiting.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load LoadFunc[V]) (V, error) {
	var zero V
	if val, ok := c.Get(key); ok {
		return val, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// another caller may have stored the value while we waited
		if val, ok := c.Get(key); ok {
			return val, nil
		}

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		val, expires, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.SetWithExpiry(key, val, expires)
		return val, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}
