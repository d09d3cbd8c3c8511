// Package cache is a process-local key/value store for serialized responses
// with per-entry TTL and substring-pattern invalidation.
//
// Expiry is evaluated lazily on read. Run drives a periodic sweep so entries
// that are never read again do not accumulate.
package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTTL applies when neither the caller nor the configuration sets one.
const DefaultTTL = 300 * time.Second

// DefaultSweepInterval is used by Run when given a non-positive interval.
const DefaultSweepInterval = time.Minute

type entry struct {
	value     []byte
	storedAt  time.Time
	expiresAt time.Time
}

// Stats are cumulative counters plus the current entry count.
type Stats struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Evictions     uint64 `json:"evictions"`
	Invalidations uint64 `json:"invalidations"`
	Entries       int    `json:"entries"`
}

// Options configures a Cache. Zero values select defaults.
type Options struct {
	DefaultTTL time.Duration
	// MaxEntries bounds the number of stored entries; 0 means unbounded.
	MaxEntries int
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	defaultTTL time.Duration
	maxEntries int
	now        func() time.Time

	hits          atomic.Uint64
	misses        atomic.Uint64
	evictions     atomic.Uint64
	invalidations atomic.Uint64
}

func New(opts Options) *Cache {
	c := &Cache{
		entries:    make(map[string]entry),
		defaultTTL: opts.DefaultTTL,
		maxEntries: opts.MaxEntries,
		now:        opts.Now,
	}
	if c.defaultTTL <= 0 {
		c.defaultTTL = DefaultTTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Get returns a copy of the value stored under key. Expired entries are misses.
func (c *Cache) Get(key string) ([]byte, bool) {
	now := c.now()
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if !now.Before(e.expiresAt) {
		c.mu.Lock()
		// Re-check: a concurrent Set may have replaced the entry.
		if cur, ok := c.entries[key]; ok && !now.Before(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return append([]byte(nil), e.value...), true
}

// Set stores a copy of value under key for ttl. A non-positive ttl uses the default.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := c.now()
	e := entry{
		value:     append([]byte(nil), value...),
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.makeRoom(now)
	}
	c.entries[key] = e
}

// makeRoom drops expired entries, then the oldest entry if the cache is still full.
// Must be called with mu held.
func (c *Cache) makeRoom(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			c.evictions.Add(1)
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.storedAt.Before(oldest) {
			oldestKey, oldest = k, e.storedAt
		}
	}
	delete(c.entries, oldestKey)
	c.evictions.Add(1)
}

// Invalidate removes every entry whose key contains pattern and returns how many were removed.
// Matching is by substring, so unrelated keys that share the pattern are dropped too.
func (c *Cache) Invalidate(pattern string) int {
	if pattern == "" {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if strings.Contains(k, pattern) {
			delete(c.entries, k)
			n++
		}
	}
	c.invalidations.Add(uint64(n))
	return n
}

// Sweep removes expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	c.evictions.Add(uint64(n))
	return n
}

// Run sweeps expired entries every interval until ctx is cancelled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Evictions:     c.evictions.Load(),
		Invalidations: c.invalidations.Load(),
		Entries:       c.Len(),
	}
}
