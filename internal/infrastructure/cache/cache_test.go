package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(clk *clock, maxEntries int) *Cache {
	return New(Options{DefaultTTL: 300 * time.Second, MaxEntries: maxEntries, Now: clk.Now})
}

func TestGet_MissThenHit(t *testing.T) {
	c := newTestCache(newClock(), 0)

	_, ok := c.Get("GET:/v1/properties")
	assert.False(t, ok)

	c.Set("GET:/v1/properties", []byte(`[1]`), 0)
	v, ok := c.Get("GET:/v1/properties")
	require.True(t, ok)
	assert.Equal(t, `[1]`, string(v))

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, 1, s.Entries)
}

func TestGet_ExpiredEntryIsMiss(t *testing.T) {
	clk := newClock()
	c := newTestCache(clk, 0)
	c.Set("k", []byte("v"), time.Second)

	clk.Advance(999 * time.Millisecond)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clk.Advance(2 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestSet_DefaultTTL(t *testing.T) {
	clk := newClock()
	c := newTestCache(clk, 0)
	c.Set("k", []byte("v"), 0)

	clk.Advance(299 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clk.Advance(time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestNew_FallsBackToPackageDefaultTTL(t *testing.T) {
	c := New(Options{})
	assert.Equal(t, DefaultTTL, c.defaultTTL)
}

func TestSet_StoresCopy(t *testing.T) {
	c := newTestCache(newClock(), 0)
	buf := []byte("original")
	c.Set("k", buf, 0)
	buf[0] = 'X'

	v, _ := c.Get("k")
	assert.Equal(t, "original", string(v))
	v[0] = 'Y'
	again, _ := c.Get("k")
	assert.Equal(t, "original", string(again))
}

func TestInvalidate_Substring(t *testing.T) {
	c := newTestCache(newClock(), 0)
	c.Set("GET:/v1/properties?page=1", []byte("a"), 0)
	c.Set("GET:/v1/properties/p1", []byte("b"), 0)
	c.Set("GET:/v1/stats|user_7", []byte("c"), 0)

	assert.Equal(t, 2, c.Invalidate("properties"))

	_, ok := c.Get("GET:/v1/properties?page=1")
	assert.False(t, ok)
	_, ok = c.Get("GET:/v1/properties/p1")
	assert.False(t, ok)
	_, ok = c.Get("GET:/v1/stats|user_7")
	assert.True(t, ok)
	assert.Equal(t, uint64(2), c.Stats().Invalidations)
}

func TestInvalidate_OverMatchesSharedSubstring(t *testing.T) {
	c := newTestCache(newClock(), 0)
	c.Set("GET:/v1/stats|user_1", []byte("a"), 0)
	c.Set("GET:/v1/stats|user_12", []byte("b"), 0)

	// user_1 is a substring of user_12; both go.
	assert.Equal(t, 2, c.Invalidate("user_1"))
}

func TestInvalidate_EmptyPatternIsNoop(t *testing.T) {
	c := newTestCache(newClock(), 0)
	c.Set("k", []byte("v"), 0)
	assert.Equal(t, 0, c.Invalidate(""))
	assert.Equal(t, 1, c.Len())
}

func TestSet_EvictsExpiredBeforeOldest(t *testing.T) {
	clk := newClock()
	c := newTestCache(clk, 2)
	c.Set("old", []byte("1"), time.Hour)
	clk.Advance(time.Second)
	c.Set("short", []byte("2"), time.Second)
	clk.Advance(2 * time.Second)

	c.Set("new", []byte("3"), 0)

	_, ok := c.Get("old")
	assert.True(t, ok)
	_, ok = c.Get("new")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestSet_EvictsOldestWhenFull(t *testing.T) {
	clk := newClock()
	c := newTestCache(clk, 2)
	c.Set("a", []byte("1"), 0)
	clk.Advance(time.Second)
	c.Set("b", []byte("2"), 0)
	clk.Advance(time.Second)
	c.Set("c", []byte("3"), 0)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, uint64(1), c.Stats().Evictions)

	// Replacing an existing key never evicts.
	c.Set("c", []byte("33"), 0)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestSweep_RemovesExpired(t *testing.T) {
	clk := newClock()
	c := newTestCache(clk, 0)
	c.Set("a", []byte("1"), time.Second)
	c.Set("b", []byte("2"), time.Hour)
	clk.Advance(time.Minute)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
}

func TestRun_StopsOnCancel(t *testing.T) {
	c := New(Options{})
	c.Set("a", []byte("1"), time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_NonPositiveIntervalUsesDefault(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		c := New(Options{})
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			c.Run(ctx, interval)
		}()
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("Run(%v) did not return after cancel", interval)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New(Options{MaxEntries: 64})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("GET:/v1/properties?page=%d", j%10)
				val := []byte(fmt.Sprintf("payload-%d", j%10))
				c.Set(key, val, 0)
				if v, ok := c.Get(key); ok {
					assert.Contains(t, string(v), "payload-")
				}
				if j%50 == 0 {
					c.Invalidate("properties")
				}
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 64)
}
