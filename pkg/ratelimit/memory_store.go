package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store. Expired keys are swept lazily during normal
// calls, so there is no background goroutine to stop. History is lost on restart and
// not shared between instances; use RedisStore when either matters.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window

	sweepInterval   time.Duration
	lastSweep       time.Time
	initialCapacity int
}

type window struct {
	timestamps []time.Time
	length     time.Duration
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithSweepInterval sets how often expired keys are removed.
func WithSweepInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

// WithInitialCapacity sets the initial capacity of each key's timestamp slice.
func WithInitialCapacity(capacity int) MemoryStoreOption {
	return func(s *MemoryStore) {
		if capacity > 0 {
			s.initialCapacity = capacity
		}
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		windows:         make(map[string]*window),
		sweepInterval:   time.Minute,
		initialCapacity: 16,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Record(_ context.Context, key string, now time.Time, length time.Duration, limit, n int) (bool, int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maybeSweep(now)

	w, ok := s.windows[key]
	if !ok {
		w = &window{timestamps: make([]time.Time, 0, s.initialCapacity)}
		s.windows[key] = w
	}
	w.length = length
	w.trim(now)

	if len(w.timestamps)+n > limit {
		return false, int64(len(w.timestamps)), w.oldest(), nil
	}
	for range n {
		w.timestamps = append(w.timestamps, now)
	}
	return true, int64(len(w.timestamps)), w.oldest(), nil
}

func (s *MemoryStore) Count(_ context.Context, key string, now time.Time, length time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maybeSweep(now)

	w, ok := s.windows[key]
	if !ok {
		return 0, time.Time{}, nil
	}
	w.length = length
	w.trim(now)
	return int64(len(w.timestamps)), w.oldest(), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// Len returns the number of tracked keys, including ones not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Must be called with the lock held.
func (s *MemoryStore) maybeSweep(now time.Time) {
	if now.Sub(s.lastSweep) < s.sweepInterval {
		return
	}
	s.lastSweep = now
	for key, w := range s.windows {
		w.trim(now)
		if len(w.timestamps) == 0 {
			delete(s.windows, key)
		}
	}
}

// trim drops timestamps at or before now-length.
func (w *window) trim(now time.Time) {
	cutoff := now.Add(-w.length)
	kept := w.timestamps[:0]
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.timestamps = kept
}

func (w *window) oldest() time.Time {
	var oldest time.Time
	for _, ts := range w.timestamps {
		if oldest.IsZero() || ts.Before(oldest) {
			oldest = ts
		}
	}
	return oldest
}
