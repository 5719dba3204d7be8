package cache_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/billingsync/pkg/cache"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTTLCache_Basic(t *testing.T) {
	t.Parallel()

	t.Run("put and get", func(t *testing.T) {
		c := cache.NewTTLCache[string, int](3, time.Minute)

		c.Put("a", 1)
		c.Put("b", 2)

		val, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 1, val)
		assert.Equal(t, 2, c.Len())
	})

	t.Run("get non-existent", func(t *testing.T) {
		c := cache.NewTTLCache[string, int](3, time.Minute)

		val, ok := c.Get("missing")
		assert.False(t, ok)
		assert.Equal(t, 0, val)
	})

	t.Run("update existing", func(t *testing.T) {
		c := cache.NewTTLCache[string, int](3, time.Minute)

		c.Put("a", 1)
		c.Put("a", 2)

		val, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 2, val)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("remove and purge", func(t *testing.T) {
		c := cache.NewTTLCache[string, int](3, time.Minute)
		c.Put("a", 1)
		c.Put("b", 2)

		assert.True(t, c.Remove("a"))
		assert.False(t, c.Remove("a"))
		assert.Equal(t, 1, c.Len())

		c.Purge()
		assert.Equal(t, 0, c.Len())
	})
}

func TestTTLCache_Eviction(t *testing.T) {
	t.Parallel()

	c := cache.NewTTLCache[string, int](2, time.Minute)
	c.Put("a", 1)
	c.Put("b", 2)

	// touch "a" so "b" becomes least recently used
	_, _ = c.Get("a")
	c.Put("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestTTLCache_Expiry(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := cache.NewTTLCache[string, int](4, time.Minute, cache.WithClock(clock.Now))

	c.Put("a", 1)
	clock.Advance(59 * time.Second)
	val, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, val)

	clock.Advance(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry is dropped on access")

	c.Put("a", 5)
	clock.Advance(30 * time.Second)
	c.Put("a", 6)
	clock.Advance(45 * time.Second)
	val, ok = c.Get("a")
	assert.True(t, ok, "put resets ttl")
	assert.Equal(t, 6, val)
}

func TestTTLCache_InvalidArguments(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { cache.NewTTLCache[string, int](0, time.Minute) })
	assert.Panics(t, func() { cache.NewTTLCache[string, int](1, 0) })
}

func TestTTLCache_Concurrent(t *testing.T) {
	t.Parallel()

	c := cache.NewTTLCache[int, int](64, time.Minute)
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := range 100 {
				c.Put(n*100+j, j)
				_, _ = c.Get(n*100 + j)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 64)
}
