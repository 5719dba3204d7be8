package billing

import (
	"context"

	"github.com/google/uuid"
)

// Portal opens a hosted self-service session for the caller's existing customer.
// A return URL outside the allowed hosts is replaced by the configured default.
func (s *Service) Portal(ctx context.Context, userID uuid.UUID, returnURL string) (string, error) {
	rec, err := s.record(ctx, userID)
	if err != nil {
		return "", err
	}
	if rec == nil || rec.ProviderCustomerID == "" {
		return "", notFoundError("no billing account")
	}

	url, err := s.provider.CreatePortalSession(ctx, PortalParams{
		CustomerID: rec.ProviderCustomerID,
		ReturnURL:  s.redirects.Resolve(returnURL, s.cfg.DefaultReturnURL),
	})
	if err != nil {
		return "", upstreamError(err, "could not create portal session")
	}
	if url == "" {
		return "", upstreamError(ErrNoSessionURL, "could not create portal session")
	}
	return url, nil
}
