package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/billingsync/pkg/async"
	"github.com/dmitrymomot/billingsync/pkg/logger"
)

// Caller is the verified identity on whose behalf an operation runs.
type Caller struct {
	UserID uuid.UUID
	Email  string
	Name   string
}

func (c Caller) validate() error {
	if c.UserID == uuid.Nil {
		return unauthorizedError("caller identity is required")
	}
	return nil
}

// CustomerIdempotencyKey is the provider idempotency key used when creating the
// customer of userID. Retried or concurrent creations resolve to the same customer.
func CustomerIdempotencyKey(userID uuid.UUID) string {
	return "billing-customer-" + userID.String()
}

// customerFlightTimeout bounds a shared customer creation once detached from its callers.
const customerFlightTimeout = 30 * time.Second

// CustomerResolver maps users to provider customers, creating one on first use.
//
// Concurrent first-time calls in one process share a single provider request.
// Across processes the provider idempotency key and the store's conditional attach
// make every caller converge on the first stored customer; a provider customer that
// lost the attach is deleted in the background.
type CustomerResolver struct {
	store    Store
	provider Provider
	runner   *async.Runner
	logger   *slog.Logger
	now      func() time.Time
	group    singleflight.Group
}

// NewCustomerResolver creates a resolver. A nil runner disables cleanup of losing customers.
func NewCustomerResolver(store Store, provider Provider, runner *async.Runner, log *slog.Logger, now func() time.Time) *CustomerResolver {
	if log == nil {
		log = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &CustomerResolver{
		store:    store,
		provider: provider,
		runner:   runner,
		logger:   log,
		now:      now,
	}
}

// Resolve returns the provider customer id of the caller, creating the customer and
// the inactive local record when none exists yet.
func (r *CustomerResolver) Resolve(ctx context.Context, caller Caller) (string, error) {
	if err := caller.validate(); err != nil {
		return "", err
	}
	if id, err := r.stored(ctx, caller.UserID); err != nil || id != "" {
		return id, err
	}

	ch := r.group.DoChan(caller.UserID.String(), func() (any, error) {
		// the flight is shared, so one caller giving up must not fail the others
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), customerFlightTimeout)
		defer cancel()

		// a flight that finished just before this one may have attached already
		if id, err := r.stored(ctx, caller.UserID); err != nil || id != "" {
			return id, err
		}
		return r.create(ctx, caller)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *CustomerResolver) stored(ctx context.Context, userID uuid.UUID) (string, error) {
	rec, err := r.store.Get(ctx, userID)
	if errors.Is(err, ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load billing record: %w", err)
	}
	return rec.ProviderCustomerID, nil
}

func (r *CustomerResolver) create(ctx context.Context, caller Caller) (string, error) {
	created, err := r.provider.CreateCustomer(ctx, CustomerParams{
		UserID:         caller.UserID.String(),
		Email:          caller.Email,
		Name:           caller.Name,
		IdempotencyKey: CustomerIdempotencyKey(caller.UserID),
	})
	if err != nil {
		return "", upstreamError(err, "could not create billing account")
	}

	winner, err := r.store.AttachCustomer(ctx, caller.UserID, created, caller.Email, r.now())
	if err != nil {
		return "", fmt.Errorf("attach provider customer: %w", err)
	}

	if winner != created {
		r.logger.WarnContext(ctx, "provider customer lost attach race",
			logger.UserID(caller.UserID),
			logger.CustomerID(created),
			slog.String("winner_customer_id", winner),
		)
		r.discard(ctx, created)
	} else {
		r.logger.InfoContext(ctx, "provider customer attached",
			logger.UserID(caller.UserID),
			logger.CustomerID(created),
		)
	}
	return winner, nil
}

func (r *CustomerResolver) discard(ctx context.Context, customerID string) {
	if r.runner == nil {
		return
	}
	r.runner.Detach(ctx, "delete-orphan-customer", func(ctx context.Context) error {
		return r.provider.DeleteCustomer(ctx, customerID)
	})
}
