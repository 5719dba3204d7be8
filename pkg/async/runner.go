package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/billingsync/pkg/logger"
)

// Task is a unit of background work.
type Task func(ctx context.Context) error

// Runner executes fire-and-forget tasks detached from the request that started them.
// Task failures and panics are logged and never propagated to the caller.
type Runner struct {
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger used to report task failures.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTaskTimeout bounds every task run by the Runner.
func WithTaskTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRunner creates a Runner with a 30 second default task timeout.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		logger:  slog.Default(),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Detach starts task in the background. The task keeps the values of ctx but not its
// cancellation, and gets its own timeout. The returned Future resolves with the task error.
func (r *Runner) Detach(ctx context.Context, name string, task Task) *Future[struct{}] {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.WarnContext(ctx, "background task rejected", slog.String("task", name), logger.Error(ErrRunnerClosed))
		return completed(struct{}{}, ErrRunnerClosed)
	}
	r.wg.Add(1)
	r.mu.Unlock()

	return Async(context.WithoutCancel(ctx), name, func(ctx context.Context, name string) (struct{}, error) {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		start := time.Now()
		err := runSafely(ctx, task)
		if err != nil {
			r.logger.ErrorContext(ctx, "background task failed",
				slog.String("task", name),
				logger.Duration(time.Since(start)),
				logger.Error(err),
			)
		}
		return struct{}{}, err
	})
}

// Shutdown stops accepting tasks and waits for running ones until ctx is done.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	select {
	case <-waitGroupDone(&r.wg):
		return nil
	case <-ctx.Done():
		return ErrDrainDeadline
	}
}

func runSafely(ctx context.Context, task Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, rec)
		}
	}()
	return task(ctx)
}
