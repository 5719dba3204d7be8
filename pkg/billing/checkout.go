package billing

import (
	"context"

	"github.com/dmitrymomot/billingsync/pkg/logger"
)

// CheckoutRequest is the input of Checkout. Empty URLs use the configured defaults.
type CheckoutRequest struct {
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// Checkout starts a hosted checkout for an allow-listed price and returns its URL.
// Recurring prices are refused while the caller already holds an entitled subscription;
// plan changes go through SwitchPlan instead. The local status is never changed here.
func (s *Service) Checkout(ctx context.Context, caller Caller, req CheckoutRequest) (string, error) {
	if err := caller.validate(); err != nil {
		return "", err
	}
	price, err := s.catalog.Price(ctx, req.PriceID)
	if err != nil {
		return "", err
	}

	if price.Recurring {
		rec, err := s.record(ctx, caller.UserID)
		if err != nil {
			return "", err
		}
		if rec != nil && rec.Status.IsEntitled() {
			return "", conflictError("already subscribed; switch plans instead")
		}
	}

	customerID, err := s.customers.Resolve(ctx, caller)
	if err != nil {
		return "", err
	}

	url, err := s.provider.CreateCheckoutSession(ctx, CheckoutParams{
		CustomerID: customerID,
		PriceID:    price.ID,
		Mode:       price.Mode(),
		SuccessURL: s.redirects.Resolve(req.SuccessURL, s.cfg.DefaultSuccessURL),
		CancelURL:  s.redirects.Resolve(req.CancelURL, s.cfg.DefaultCancelURL),
		UserID:     caller.UserID.String(),
	})
	if err != nil {
		return "", upstreamError(err, "could not create checkout session")
	}
	if url == "" {
		return "", upstreamError(ErrNoSessionURL, "could not create checkout session")
	}

	s.logger.InfoContext(ctx, "checkout session created",
		logger.UserID(caller.UserID),
		logger.CustomerID(customerID),
		logger.PriceID(price.ID),
	)
	return url, nil
}
