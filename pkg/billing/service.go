package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingsync/pkg/async"
)

// Service exposes the user-facing billing operations and the webhook sink.
//
// User operations write the provider's synchronous response locally right away;
// the webhook sink later writes the provider's asynchronous notification of the
// same change. Both copy the same provider object, so they converge regardless of
// arrival order.
type Service struct {
	cfg        Config
	store      Store
	provider   Provider
	catalog    *Catalog
	redirects  RedirectPolicy
	customers  *CustomerResolver
	reconciler *Reconciler
	notifier   Notifier
	runner     *async.Runner
	logger     *slog.Logger
	now        func() time.Time

	extraEntries []CatalogEntry
}

// ServiceOption configures optional Service dependencies.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for optimistic writes.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithNotifier sets the receiver of fire-and-forget lifecycle notifications.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithRunner sets the background runner used for detached side effects.
func WithRunner(r *async.Runner) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.runner = r
		}
	}
}

// WithCatalogEntries adds named entries to the price allow-list.
func WithCatalogEntries(entries ...CatalogEntry) ServiceOption {
	return func(s *Service) {
		s.extraEntries = append(s.extraEntries, entries...)
	}
}

// NewService wires the billing core.
// Panics if store or provider is nil to fail fast during initialization.
func NewService(cfg Config, store Store, provider Provider, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		panic("billing: Store is required")
	}
	if provider == nil {
		panic("billing: Provider is required")
	}

	s := &Service{
		cfg:       cfg,
		store:     store,
		provider:  provider,
		redirects: NewRedirectPolicy(cfg.RedirectHosts),
		notifier:  NopNotifier{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.runner == nil {
		s.runner = async.NewRunner(async.WithLogger(s.logger), async.WithTaskTimeout(cfg.NotificationTimeout))
	}

	entries := s.extraEntries
	if cfg.CatalogFile != "" {
		fromFile, err := LoadCatalogFile(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fromFile...)
	}
	catalog, err := NewCatalog(provider, cfg.PriceIDs, entries, cfg.PriceCacheTTL, cfg.PriceCacheSize)
	if err != nil {
		return nil, err
	}
	s.catalog = catalog

	s.customers = NewCustomerResolver(store, provider, s.runner, s.logger, s.now)
	s.reconciler = NewReconciler(store, provider,
		WithReconcilerLogger(s.logger),
		WithReconcilerNotifier(s.notifier),
		WithReconcilerRunner(s.runner),
	)
	return s, nil
}

// Customers returns the customer resolver.
func (s *Service) Customers() *CustomerResolver { return s.customers }

// Reconciler returns the webhook reconciler.
func (s *Service) Reconciler() *Reconciler { return s.reconciler }

// Prices lists the purchasable prices.
func (s *Service) Prices() []CatalogEntry { return s.catalog.Entries() }

// Status returns the caller's record, or nil when the caller has none.
func (s *Service) Status(ctx context.Context, userID uuid.UUID) (*Record, error) {
	return s.record(ctx, userID)
}

// HandleWebhook verifies and reconciles one provider notification.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	return s.reconciler.Handle(ctx, payload, signature)
}

// record loads the caller's record, mapping a missing one to nil.
func (s *Service) record(ctx context.Context, userID uuid.UUID) (*Record, error) {
	if userID == uuid.Nil {
		return nil, unauthorizedError("caller identity is required")
	}
	rec, err := s.store.Get(ctx, userID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load billing record: %w", err)
	}
	return rec, nil
}

// applyResponse writes a snapshot returned synchronously by the provider. The stamp
// is cut to whole seconds to match provider event times, so a notification created
// in the same second still applies.
func (s *Service) applyResponse(ctx context.Context, userID uuid.UUID, snap *Snapshot) error {
	if _, err := s.store.ApplySnapshot(ctx, userID, *snap, s.now().Truncate(time.Second)); err != nil {
		return fmt.Errorf("store provider response: %w", err)
	}
	return nil
}
