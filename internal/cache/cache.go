package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Key builds a cache key under the given namespace. Invalidate removes all
// keys sharing a namespace in one call.
func Key(namespace string, parts ...string) string {
	if len(parts) == 0 {
		return namespace
	}
	return namespace + "/" + strings.Join(parts, "/")
}

// Namespace returns the namespace component of a key.
func Namespace(key string) string {
	if i := strings.IndexByte(key, '/'); i >= 0 {
		return key[:i]
	}
	return key
}

type entry struct {
	value  any
	expiry time.Time
}

// Cache is a time-bounded memoization layer with namespaced invalidation.
//
// Reads go through GetOrCompute: a present, unexpired entry is returned
// directly; otherwise the compute function runs under a per-key
// single-flight, so concurrent callers for the same key share one upstream
// fetch and its result (or failure). An entry is never served past its TTL.
//
// Invalidate removes every entry in a namespace and bumps the namespace
// generation, so that a computation that started before the invalidation
// cannot store its (possibly stale) result afterwards.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]entry
	gens     map[string]uint64
	inflight map[string]map[string]int

	group singleflight.Group

	now      func() time.Time
	onLookup func(namespace string, hit bool)
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLookupHook installs a callback invoked on every lookup with the key's
// namespace and whether it was a hit. Used to feed cache metrics.
func WithLookupHook(fn func(namespace string, hit bool)) Option {
	return func(c *Cache) { c.onLookup = fn }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:  make(map[string]entry),
		gens:     make(map[string]uint64),
		inflight: make(map[string]map[string]int),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCompute returns the cached value for key if present and unexpired;
// otherwise it invokes compute, stores the result with the given TTL, and
// returns it. At most one computation per key is in flight at a time;
// concurrent callers wait on it and share its result or failure. A TTL of
// zero or less computes without caching.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) (any, error)) (any, error) {
	ns := Namespace(key)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.now().Before(e.expiry) {
		c.mu.Unlock()
		c.lookup(ns, true)
		return e.value, nil
	}
	gen := c.gens[ns]
	if c.inflight[ns] == nil {
		c.inflight[ns] = make(map[string]int)
	}
	c.inflight[ns][key]++
	c.mu.Unlock()
	c.lookup(ns, false)

	defer func() {
		c.mu.Lock()
		if m := c.inflight[ns]; m != nil {
			m[key]--
			if m[key] <= 0 {
				delete(m, key)
			}
		}
		c.mu.Unlock()
	}()

	v, err, _ := c.group.Do(key, func() (any, error) {
		// A flight that completed while this caller was queueing may
		// have populated the entry already.
		c.mu.Lock()
		if e, ok := c.entries[key]; ok && c.now().Before(e.expiry) {
			c.mu.Unlock()
			return e.value, nil
		}
		c.mu.Unlock()

		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		// Skip the store if the namespace was invalidated while the
		// computation ran; the result may predate a mutation.
		if ttl > 0 && c.gens[ns] == gen {
			c.entries[key] = entry{value: v, expiry: c.now().Add(ttl)}
		}
		c.mu.Unlock()
		return v, nil
	})
	return v, err
}

// Invalidate removes all entries whose key falls under the given namespace
// and detaches any in-flight computations for it, so that reads issued
// after Invalidate returns start fresh.
func (c *Cache) Invalidate(namespace string) {
	prefix := namespace + "/"

	c.mu.Lock()
	c.gens[namespace]++
	for k := range c.entries {
		if k == namespace || strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	var forget []string
	for k := range c.inflight[namespace] {
		forget = append(forget, k)
	}
	c.mu.Unlock()

	for _, k := range forget {
		c.group.Forget(k)
	}
}

// Peek returns the cached value for key without touching single-flight
// state. It reports false for absent or expired entries.
func (c *Cache) Peek(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiry) {
		return nil, false
	}
	return e.value, true
}

// Len returns the number of stored entries, including expired ones not yet
// overwritten.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) lookup(namespace string, hit bool) {
	if c.onLookup != nil {
		c.onLookup(namespace, hit)
	}
}
