package billing

import (
	"context"
	"log/slog"
	"time"

	core "github.com/dmitrymomot/billingsync/pkg/billing"
	"github.com/dmitrymomot/billingsync/pkg/logger"
)

// Janitor periodically drops processed webhook ids older than the retention.
type Janitor struct {
	pruner    core.EventPruner
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewJanitor returns a janitor over pruner. Non-positive durations fall back to
// 30 days of retention and an hourly sweep.
func NewJanitor(pruner core.EventPruner, retention, interval time.Duration, log *slog.Logger) *Janitor {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &Janitor{
		pruner:    pruner,
		retention: retention,
		interval:  interval,
		logger:    log.With(logger.Component("event-janitor")),
		now:       time.Now,
	}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep prunes once. Failures are logged and retried on the next tick.
func (j *Janitor) Sweep(ctx context.Context) {
	n, err := j.pruner.PruneEvents(ctx, j.now().Add(-j.retention))
	if err != nil {
		j.logger.ErrorContext(ctx, "prune processed events failed", logger.Error(err))
		return
	}
	if n > 0 {
		j.logger.InfoContext(ctx, "pruned processed events", slog.Int64("count", n))
	}
}
