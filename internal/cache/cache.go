// Package cache deduplicates and caches read requests by key, invalidates
// entries after writes, and carries append-only feed pagination.
//
// Reads follow stale-while-revalidate: within the stale TTL a cached value is
// served as-is; past it the cached value is still returned immediately while
// a background re-fetch refreshes the entry. Concurrent fetches for one key
// are coalesced through singleflight so at most one request is in flight per
// key. Writes never patch cached values; they invalidate, and the next read
// fetches server truth.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrWrongType is returned by GetAs when a key holds a value of another type,
// which indicates two call sites disagree on the key's shape.
var ErrWrongType = errors.New("cache: value has unexpected type")

// FetchFunc loads the authoritative value for a key from the API.
type FetchFunc func(ctx context.Context) (any, error)

type entry struct {
	value       any
	fetchedAt   time.Time
	invalidated bool
	observers   int
	lastAccess  time.Time
}

// Cache is a keyed read cache. Safe for concurrent use.
type Cache struct {
	staleTTL     time.Duration
	retentionTTL time.Duration

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	epochs  map[string]uint64
	now     func() time.Time
}

// New returns a Cache with the given freshness window and retention window
// for unobserved entries.
func New(staleTTL, retentionTTL time.Duration) *Cache {
	return &Cache{
		staleTTL:     staleTTL,
		retentionTTL: retentionTTL,
		entries:      map[string]*entry{},
		epochs:       map[string]uint64{},
		now:          time.Now,
	}
}

// Get returns the value for key, fetching through fetch on a miss or after
// invalidation. A fresh hit is served from memory; a stale hit is served
// immediately while a background re-fetch runs. Concurrent calls for the same
// key share one fetch.
func (c *Cache) Get(ctx context.Context, key Key, fetch FetchFunc) (any, error) {
	k := key.String()

	c.mu.Lock()
	e := c.entries[k]
	if e != nil && !e.invalidated {
		e.lastAccess = c.now()
		age := c.now().Sub(e.fetchedAt)
		value := e.value
		stale := age >= c.staleTTL
		c.mu.Unlock()
		if stale {
			// Serve the last known value now; refresh behind the caller.
			bg := context.WithoutCancel(ctx)
			go func() { _, _ = c.fetch(bg, key, fetch) }()
		}
		return value, nil
	}
	c.mu.Unlock()

	return c.fetch(ctx, key, fetch)
}

// fetch loads the value through singleflight and stores it unless the key was
// reset while the request was in flight.
func (c *Cache) fetch(ctx context.Context, key Key, fetch FetchFunc) (any, error) {
	k := key.String()

	c.mu.Lock()
	epoch := c.epochs[k]
	c.mu.Unlock()

	v, err, _ := c.group.Do(k, func() (any, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.store(k, epoch, value)
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// store records a fetched value. A result that started under an older epoch
// (the key was reset meanwhile) is not applied; the caller still receives it.
func (c *Cache) store(k string, epoch uint64, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epochs[k] != epoch {
		return
	}
	now := c.now()
	prev := c.entries[k]
	e := &entry{value: value, fetchedAt: now, lastAccess: now}
	if prev != nil {
		e.observers = prev.observers
	}
	c.entries[k] = e
}

// Invalidate marks every entry whose key starts with prefix so the next read
// re-fetches authoritative data.
func (c *Cache) Invalidate(prefix Key) {
	p := prefix.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if keyMatches(k, p) {
			e.invalidated = true
		}
	}
}

// Reset discards the entry for key and bumps its epoch so any in-flight fetch
// for the old generation is dropped on arrival.
func (c *Cache) Reset(key Key) {
	k := key.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, k)
	c.epochs[k]++
}

// Retain marks an observer on key, protecting the entry from the retention
// sweep. Pair with Release.
func (c *Cache) Retain(key Key) {
	k := key.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.entries[k]; e != nil {
		e.observers++
	}
}

// Release drops an observer previously added with Retain.
func (c *Cache) Release(key Key) {
	k := key.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.entries[k]; e != nil && e.observers > 0 {
		e.observers--
	}
}

// Sweep discards entries that have had no observers and no access for the
// retention window. Call periodically.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-c.retentionTTL)
	for k, e := range c.entries {
		if e.observers == 0 && e.lastAccess.Before(cutoff) {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// keyMatches reports whether rendered key k falls under rendered prefix p:
// equal, or extending it at a part boundary.
func keyMatches(k, p string) bool {
	if p == "" || k == p {
		return true
	}
	return len(k) > len(p) && k[:len(p)] == p && k[len(p)] == '|'
}

// GetAs is the typed wrapper over Cache.Get.
func GetAs[T any](ctx context.Context, c *Cache, key Key, fetch func(ctx context.Context) (T, error)) (T, error) {
	v, err := c.Get(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		var zero T
		return zero, ErrWrongType
	}
	return out, nil
}
