package billing

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingsync/pkg/logger"
)

// SwitchPlan replaces the price of the caller's subscription item with proration and
// stores the provider's response. Preconditions are checked in order: a linked
// subscription must exist, it must be entitled, and the price must differ.
func (s *Service) SwitchPlan(ctx context.Context, userID uuid.UUID, newPriceID string) error {
	newPriceID = strings.TrimSpace(newPriceID)
	if newPriceID == "" {
		return validationError("new price id is required")
	}
	if !s.catalog.Allowed(newPriceID) {
		return validationError("unknown price id %q", newPriceID)
	}

	rec, err := s.record(ctx, userID)
	if err != nil {
		return err
	}
	if !rec.HasSubscription() {
		return notFoundError("no active subscription")
	}
	if !rec.Status.IsEntitled() {
		return conflictError("cannot switch while subscription is %s", rec.Status)
	}
	if rec.PriceID == newPriceID {
		return conflictError("already on this plan")
	}

	price, err := s.catalog.Price(ctx, newPriceID)
	if err != nil {
		return err
	}
	if !price.Recurring {
		return validationError("price %q is not a recurring plan", newPriceID)
	}

	snap, err := s.provider.UpdateSubscriptionPrice(ctx, SwitchParams{
		SubscriptionID:     rec.ProviderSubscriptionID,
		SubscriptionItemID: rec.ProviderSubscriptionItemID,
		PriceID:            newPriceID,
	})
	if err != nil {
		return upstreamError(err, "could not switch plan")
	}
	if snap.BillingInterval == "" {
		snap.BillingInterval = price.Label()
	}
	if err := s.applyResponse(ctx, userID, snap); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "subscription plan switched",
		logger.UserID(userID),
		logger.SubscriptionID(rec.ProviderSubscriptionID),
		logger.PriceID(newPriceID),
		logger.Group("previous", logger.PriceID(rec.PriceID)),
	)
	return nil
}
