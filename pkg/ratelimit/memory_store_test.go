package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingsync/pkg/ratelimit"
)

func TestMemoryStore_Record(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := ratelimit.NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ok, count, oldest, err := store.Record(ctx, "k", now, time.Minute, 2, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, now, oldest)

	ok, count, _, err = store.Record(ctx, "k", now.Add(time.Second), time.Minute, 2, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), count)

	ok, count, oldest, err = store.Record(ctx, "k", now.Add(2*time.Second), time.Minute, 2, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, now, oldest)

	// exactly one window later the first timestamp is out
	ok, count, oldest, err = store.Record(ctx, "k", now.Add(time.Minute), time.Minute, 2, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, now.Add(time.Second), oldest)
}

func TestMemoryStore_LazySweep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := ratelimit.NewMemoryStore(ratelimit.WithSweepInterval(time.Minute))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, key := range []string{"a", "b", "c"} {
		_, _, _, err := store.Record(ctx, key, now, 10*time.Second, 5, 1)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, store.Len())

	// Before the sweep interval elapses expired keys stay tracked.
	_, _, err := store.Count(ctx, "a", now.Add(30*time.Second), 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, store.Len())

	_, _, _, err = store.Record(ctx, "d", now.Add(2*time.Minute), 10*time.Second, 5, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len(), "expired keys are swept on the next call after the interval")
}

func TestMemoryStore_Delete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := ratelimit.NewMemoryStore()
	now := time.Now()

	_, _, _, err := store.Record(ctx, "k", now, time.Minute, 5, 3)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "k"))

	count, oldest, err := store.Count(ctx, "k", now, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.True(t, oldest.IsZero())
}
