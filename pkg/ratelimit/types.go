package ratelimit

import (
	"context"
	"time"
)

// Result contains the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the maximum number of requests allowed in the window.
	Limit int

	// Remaining is the number of requests remaining in the current window.
	Remaining int

	// ResetAt is when the oldest counted request leaves the window.
	ResetAt time.Time
}

// RetryAfter returns how long to wait before the next request is allowed,
// measured from now. Returns 0 if the request was allowed.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed {
		return 0
	}
	return max(r.ResetAt.Sub(now), 0)
}

// Limiter defines the interface for rate limiting implementations.
type Limiter interface {
	// Allow checks if a single request is allowed for the given key and records it if so.
	Allow(ctx context.Context, key string) (*Result, error)

	// AllowN checks if n requests are allowed for the given key and records them if so.
	AllowN(ctx context.Context, key string, n int) (*Result, error)

	// Status returns the current state for the given key without recording anything.
	Status(ctx context.Context, key string) (*Result, error)

	// Reset clears the history for the given key.
	Reset(ctx context.Context, key string) error
}

// Store keeps request timestamps per key for the sliding window.
// Implementations must make Record atomic per key.
type Store interface {
	// Record drops timestamps older than now-window, then records n timestamps at now
	// when the remaining count plus n does not exceed limit. It returns whether the
	// timestamps were recorded, the resulting count, and the oldest timestamp still in
	// the window (zero when the window is empty).
	Record(ctx context.Context, key string, now time.Time, window time.Duration, limit, n int) (allowed bool, count int64, oldest time.Time, err error)

	// Count returns the number of timestamps in (now-window, now] and the oldest of them.
	Count(ctx context.Context, key string, now time.Time, window time.Duration) (count int64, oldest time.Time, err error)

	// Delete removes all history for the key.
	Delete(ctx context.Context, key string) error
}
