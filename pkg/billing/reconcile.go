package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingsync/pkg/async"
	"github.com/dmitrymomot/billingsync/pkg/logger"
)

// Outcome describes what the reconciler did with an acknowledged event.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeStale        Outcome = "stale"
	OutcomeUnattributed Outcome = "unattributed"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeMalformed    Outcome = "malformed"
	OutcomeNotified     Outcome = "notified"
)

// Reconciler is the authoritative sink for provider notifications.
//
// Every event is processed as: verify, skip if already processed, attribute to a user,
// apply the provider snapshot wholesale unless the stored one is newer, then mark the
// event processed. Any error returned is transient and must be answered with a server
// error so the provider redelivers; permanent problems are acknowledged as outcomes.
type Reconciler struct {
	store    Store
	provider Provider
	notifier Notifier
	runner   *async.Runner
	logger   *slog.Logger
	now      func() time.Time
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

func WithReconcilerLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithReconcilerNotifier(n Notifier) ReconcilerOption {
	return func(r *Reconciler) {
		if n != nil {
			r.notifier = n
		}
	}
}

func WithReconcilerRunner(rn *async.Runner) ReconcilerOption {
	return func(r *Reconciler) {
		if rn != nil {
			r.runner = rn
		}
	}
}

func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler creates a Reconciler.
func NewReconciler(store Store, provider Provider, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:    store,
		provider: provider,
		notifier: NopNotifier{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runner == nil {
		r.runner = async.NewRunner(async.WithLogger(r.logger))
	}
	return r
}

// sideEffect runs only after the event was recorded as processed by this delivery.
type sideEffect func(ctx context.Context)

// Handle verifies, deduplicates and applies a raw webhook payload.
func (r *Reconciler) Handle(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	ev, err := r.provider.ParseEvent(payload, signature)
	switch {
	case errors.Is(err, ErrInvalidSignature):
		return "", newError(ErrUnauthorized, err, "invalid webhook signature")
	case errors.Is(err, ErrMalformedEvent):
		r.logger.WarnContext(ctx, "malformed webhook event acknowledged", logger.Error(err))
		return OutcomeMalformed, nil
	case err != nil:
		return "", fmt.Errorf("parse webhook event: %w", err)
	}
	return r.Process(ctx, ev)
}

// Process applies an already verified event.
func (r *Reconciler) Process(ctx context.Context, ev *Event) (Outcome, error) {
	log := r.logger.With(logger.EventID(ev.ID), logger.EventType(ev.Type))

	processed, err := r.store.IsEventProcessed(ctx, ev.ID)
	if err != nil {
		return "", fmt.Errorf("check processed event: %w", err)
	}
	if processed {
		log.DebugContext(ctx, "duplicate webhook event skipped")
		return OutcomeDuplicate, nil
	}

	outcome, effect, err := r.apply(ctx, ev)
	if err != nil {
		log.ErrorContext(ctx, "webhook event apply failed", logger.Error(err))
		return "", err
	}

	first, err := r.store.MarkEventProcessed(ctx, ev.ID, ev.Type, r.now())
	if err != nil {
		return "", fmt.Errorf("mark event processed: %w", err)
	}
	if first && effect != nil {
		effect(ctx)
	}

	log.InfoContext(ctx, "webhook event reconciled", slog.String("outcome", string(outcome)))
	return outcome, nil
}

func (r *Reconciler) apply(ctx context.Context, ev *Event) (Outcome, sideEffect, error) {
	switch p := ev.Payload.(type) {
	case SubscriptionChanged:
		return r.applySubscription(ctx, ev, p.Snapshot)
	case CheckoutCompleted:
		return r.applyCheckout(ctx, ev, p)
	case InvoicePaid:
		return r.applyInvoicePaid(ctx, ev, p)
	case PaymentFailed:
		return r.applyPaymentFailed(ctx, p)
	default:
		return OutcomeIgnored, nil, nil
	}
}

func (r *Reconciler) applySubscription(ctx context.Context, ev *Event, snap Snapshot) (Outcome, sideEffect, error) {
	userID, ok, err := r.attribute(ctx, snap.CustomerID, snap.MetadataUserID)
	if err != nil || !ok {
		return OutcomeUnattributed, nil, err
	}
	return r.applySnapshot(ctx, userID, snap, ev.CreatedAt)
}

func (r *Reconciler) applyCheckout(ctx context.Context, ev *Event, c CheckoutCompleted) (Outcome, sideEffect, error) {
	userID, ok, err := r.attribute(ctx, c.CustomerID, c.UserRef)
	if err != nil || !ok {
		return OutcomeUnattributed, nil, err
	}

	if c.Mode == CheckoutModeSubscription && c.SubscriptionID != "" {
		snap, err := r.provider.GetSubscription(ctx, c.SubscriptionID)
		if err != nil {
			return "", nil, upstreamError(err, "could not load subscription %s", c.SubscriptionID)
		}
		if snap.CustomerID == "" {
			snap.CustomerID = c.CustomerID
		}
		return r.applySnapshot(ctx, userID, *snap, ev.CreatedAt)
	}

	if c.Mode != CheckoutModePayment || !c.Paid {
		return OutcomeIgnored, nil, nil
	}

	// a one-time purchase never replaces a live subscription
	rec, err := r.store.Get(ctx, userID)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return "", nil, fmt.Errorf("load billing record: %w", err)
	}
	if rec != nil && rec.HasSubscription() && rec.Status != StatusCanceled {
		return OutcomeIgnored, nil, nil
	}
	return r.applySnapshot(ctx, userID, Snapshot{
		CustomerID:      c.CustomerID,
		PriceID:         c.PriceID,
		Status:          StatusActive,
		BillingInterval: IntervalOneTime,
	}, ev.CreatedAt)
}

func (r *Reconciler) applyInvoicePaid(ctx context.Context, ev *Event, inv InvoicePaid) (Outcome, sideEffect, error) {
	if inv.SubscriptionID == "" {
		return OutcomeIgnored, nil, nil
	}
	userID, ok, err := r.attribute(ctx, inv.CustomerID, "")
	if err != nil || !ok {
		return OutcomeUnattributed, nil, err
	}
	snap, err := r.provider.GetSubscription(ctx, inv.SubscriptionID)
	if err != nil {
		return "", nil, upstreamError(err, "could not load subscription %s", inv.SubscriptionID)
	}
	return r.applySnapshot(ctx, userID, *snap, ev.CreatedAt)
}

func (r *Reconciler) applyPaymentFailed(ctx context.Context, f PaymentFailed) (Outcome, sideEffect, error) {
	userID, ok, err := r.attribute(ctx, f.CustomerID, "")
	if err != nil || !ok {
		return OutcomeUnattributed, nil, err
	}
	return OutcomeNotified, func(ctx context.Context) {
		r.runner.Detach(ctx, "notify-payment-failed", func(ctx context.Context) error {
			rec, err := r.store.Get(ctx, userID)
			if err != nil {
				return err
			}
			return r.notifier.PaymentFailed(ctx, *rec, f)
		})
	}, nil
}

func (r *Reconciler) applySnapshot(ctx context.Context, userID uuid.UUID, snap Snapshot, at time.Time) (Outcome, sideEffect, error) {
	prev, err := r.store.Get(ctx, userID)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return "", nil, fmt.Errorf("load billing record: %w", err)
	}
	if prev.Supersedes(snap) {
		r.logger.InfoContext(ctx, "snapshot of replaced subscription skipped",
			logger.UserID(userID),
			logger.SubscriptionID(snap.SubscriptionID),
			slog.String("live_subscription_id", prev.ProviderSubscriptionID),
		)
		return OutcomeStale, nil, nil
	}

	applied, err := r.store.ApplySnapshot(ctx, userID, snap, at)
	if err != nil {
		return "", nil, fmt.Errorf("apply subscription snapshot: %w", err)
	}
	if !applied {
		r.logger.InfoContext(ctx, "stale subscription snapshot skipped",
			logger.UserID(userID),
			logger.SubscriptionID(snap.SubscriptionID),
			slog.Time("snapshot_at", at),
		)
		return OutcomeStale, nil, nil
	}

	wasEntitled := prev != nil && prev.Status.IsEntitled()
	if wasEntitled || !snap.Status.IsEntitled() {
		return OutcomeApplied, nil, nil
	}
	return OutcomeApplied, func(ctx context.Context) {
		r.runner.Detach(ctx, "notify-subscription-activated", func(ctx context.Context) error {
			rec, err := r.store.Get(ctx, userID)
			if err != nil {
				return err
			}
			return r.notifier.SubscriptionActivated(ctx, *rec)
		})
	}, nil
}

// attribute resolves the owning user, preferring the stored customer mapping over
// the user id stamped into provider metadata.
func (r *Reconciler) attribute(ctx context.Context, customerID, userRef string) (uuid.UUID, bool, error) {
	if customerID != "" {
		rec, err := r.store.FindByCustomerID(ctx, customerID)
		switch {
		case err == nil:
			return rec.UserID, true, nil
		case !errors.Is(err, ErrRecordNotFound):
			return uuid.Nil, false, fmt.Errorf("find record by customer: %w", err)
		}
	}
	if userRef != "" {
		if id, err := uuid.Parse(userRef); err == nil && id != uuid.Nil {
			return id, true, nil
		}
	}
	r.logger.InfoContext(ctx, "webhook event not attributable to a user", logger.CustomerID(customerID))
	return uuid.Nil, false, nil
}
