package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingsync/pkg/logger"
)

// Cancel schedules cancellation at the end of the current period and returns when it
// takes effect. Repeating it is harmless on the provider side.
func (s *Service) Cancel(ctx context.Context, userID uuid.UUID) (time.Time, error) {
	rec, err := s.record(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	if rec == nil || rec.ProviderSubscriptionID == "" {
		return time.Time{}, notFoundError("no active subscription")
	}
	if rec.Status == StatusCanceled {
		return time.Time{}, conflictError("subscription has already ended")
	}

	snap, err := s.provider.SetCancelAtPeriodEnd(ctx, rec.ProviderSubscriptionID, true)
	if err != nil {
		return time.Time{}, upstreamError(err, "could not cancel subscription")
	}
	if err := s.applyResponse(ctx, userID, snap); err != nil {
		return time.Time{}, err
	}

	effectiveAt := snap.CancellationEffectiveAt(s.now())
	s.logger.InfoContext(ctx, "subscription cancellation scheduled",
		logger.UserID(userID),
		logger.SubscriptionID(rec.ProviderSubscriptionID),
		slog.Time("effective_at", effectiveAt),
	)
	return effectiveAt, nil
}

// Resume clears a scheduled cancellation. Only a pending cancellation on a subscription
// that has not ended can be resumed.
func (s *Service) Resume(ctx context.Context, userID uuid.UUID) error {
	rec, err := s.record(ctx, userID)
	if err != nil {
		return err
	}
	if rec != nil && rec.Status == StatusCanceled {
		return conflictError("subscription has already ended")
	}
	// a missing record has nothing scheduled either
	if rec == nil || !rec.CancelAtPeriodEnd {
		return conflictError("subscription is not pending cancellation")
	}
	if rec.ProviderSubscriptionID == "" {
		return notFoundError("no active subscription")
	}

	snap, err := s.provider.SetCancelAtPeriodEnd(ctx, rec.ProviderSubscriptionID, false)
	if err != nil {
		return upstreamError(err, "could not resume subscription")
	}
	snap.CancelAtPeriodEnd = false
	snap.CancelAt = nil
	if err := s.applyResponse(ctx, userID, snap); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "subscription resumed",
		logger.UserID(userID),
		logger.SubscriptionID(rec.ProviderSubscriptionID),
	)
	return nil
}
