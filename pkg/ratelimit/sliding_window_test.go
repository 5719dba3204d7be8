package ratelimit_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingsync/pkg/ratelimit"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
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

func TestNewSlidingWindow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		store       ratelimit.Store
		limit       int
		window      time.Duration
		expectError error
	}{
		{name: "nil store", store: nil, limit: 10, window: time.Second, expectError: ratelimit.ErrStoreRequired},
		{name: "zero limit", store: ratelimit.NewMemoryStore(), limit: 0, window: time.Second, expectError: ratelimit.ErrInvalidLimit},
		{name: "negative window", store: ratelimit.NewMemoryStore(), limit: 10, window: -time.Second, expectError: ratelimit.ErrInvalidInterval},
		{name: "valid", store: ratelimit.NewMemoryStore(), limit: 10, window: time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sw, err := ratelimit.NewSlidingWindow(tt.store, tt.limit, tt.window)
			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				assert.Nil(t, sw)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, sw)
		})
	}
}

func TestSlidingWindow_Allow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()

	sw, err := ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore(), 3, time.Minute, ratelimit.WithClock(clock.Now))
	require.NoError(t, err)

	for i := range 3 {
		res, err := sw.Allow(ctx, "checkout:u1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
		clock.Advance(10 * time.Second)
	}

	res, err := sw.Allow(ctx, "checkout:u1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 30*time.Second, res.RetryAfter(clock.Now()), "first request leaves the window after a minute")

	other, err := sw.Allow(ctx, "checkout:u2")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are independent")

	clock.Advance(31 * time.Second)
	res, err = sw.Allow(ctx, "checkout:u1")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "the oldest request slid out of the window")
}

func TestSlidingWindow_AllowN(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	sw, err := ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore(), 5, time.Minute)
	require.NoError(t, err)

	res, err := sw.AllowN(ctx, "k", 4)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)

	res, err = sw.AllowN(ctx, "k", 2)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "partial admission is not allowed")
	assert.Equal(t, 1, res.Remaining)

	_, err = sw.Allow(ctx, "")
	assert.ErrorIs(t, err, ratelimit.ErrKeyRequired)
}

func TestSlidingWindow_StatusAndReset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	sw, err := ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore(), 2, time.Minute)
	require.NoError(t, err)

	_, err = sw.AllowN(ctx, "k", 2)
	require.NoError(t, err)

	status, err := sw.Status(ctx, "k")
	require.NoError(t, err)
	assert.False(t, status.Allowed)
	assert.Equal(t, 0, status.Remaining)

	require.NoError(t, sw.Reset(ctx, "k"))

	status, err = sw.Status(ctx, "k")
	require.NoError(t, err)
	assert.True(t, status.Allowed)
	assert.Equal(t, 2, status.Remaining)
}

func TestSlidingWindow_Concurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	sw, err := ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore(), 50, time.Minute)
	require.NoError(t, err)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := sw.Allow(ctx, "shared")
			if assert.NoError(t, err) && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), allowed.Load())
}
