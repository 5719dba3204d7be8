// Package pgstore is the PostgreSQL implementation of billing.Store.
//
// Every conditional write is a single statement so that concurrent webhook
// deliveries and user operations are decided by the database.
package pgstore

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/billingsync/pkg/billing"
	"github.com/dmitrymomot/billingsync/pkg/pg"
)

// Migrations holds the goose migrations for the billing tables under "migrations".
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations that holds the files.
const MigrationsDir = "migrations"

// DB is the subset of *pgxpool.Pool used by the store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists billing records in PostgreSQL.
type Store struct {
	db  DB
	now func() time.Time
}

var (
	_ billing.Store       = (*Store)(nil)
	_ billing.EventPruner = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Store over db.
func New(db DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const selectRecord = `
	SELECT user_id, COALESCE(provider_customer_id, ''), provider_subscription_id,
		provider_subscription_item_id, price_id, status, cancel_at_period_end, cancel_at,
		current_period_end, billing_interval, billing_email, synced_at, created_at, updated_at
	FROM billing_subscriptions`

func (s *Store) Get(ctx context.Context, userID uuid.UUID) (*billing.Record, error) {
	return s.scanOne(ctx, selectRecord+` WHERE user_id = $1`, userID)
}

func (s *Store) FindByCustomerID(ctx context.Context, customerID string) (*billing.Record, error) {
	if customerID == "" {
		return nil, billing.ErrRecordNotFound
	}
	return s.scanOne(ctx, selectRecord+` WHERE provider_customer_id = $1`, customerID)
}

const attachCustomer = `
	INSERT INTO billing_subscriptions (user_id, provider_customer_id, billing_email, status, created_at, updated_at)
	VALUES ($1, $2, $3, 'inactive', $4, $4)
	ON CONFLICT (user_id) DO UPDATE SET
		provider_customer_id = COALESCE(billing_subscriptions.provider_customer_id, EXCLUDED.provider_customer_id),
		billing_email = CASE WHEN billing_subscriptions.billing_email = '' THEN EXCLUDED.billing_email
			ELSE billing_subscriptions.billing_email END,
		updated_at = CASE WHEN billing_subscriptions.provider_customer_id IS NULL THEN EXCLUDED.updated_at
			ELSE billing_subscriptions.updated_at END
	RETURNING provider_customer_id`

func (s *Store) AttachCustomer(ctx context.Context, userID uuid.UUID, customerID, email string, at time.Time) (string, error) {
	var stored string
	if err := s.db.QueryRow(ctx, attachCustomer, userID, customerID, email, at).Scan(&stored); err != nil {
		return "", fmt.Errorf("attach customer: %w", err)
	}
	return stored, nil
}

const applySnapshot = `
	INSERT INTO billing_subscriptions (
		user_id, provider_customer_id, provider_subscription_id, provider_subscription_item_id,
		price_id, status, cancel_at_period_end, cancel_at, current_period_end, billing_interval,
		synced_at, created_at, updated_at
	) VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	ON CONFLICT (user_id) DO UPDATE SET
		provider_customer_id = COALESCE(billing_subscriptions.provider_customer_id, EXCLUDED.provider_customer_id),
		provider_subscription_id = EXCLUDED.provider_subscription_id,
		provider_subscription_item_id = EXCLUDED.provider_subscription_item_id,
		price_id = EXCLUDED.price_id,
		status = EXCLUDED.status,
		cancel_at_period_end = EXCLUDED.cancel_at_period_end,
		cancel_at = EXCLUDED.cancel_at,
		current_period_end = EXCLUDED.current_period_end,
		billing_interval = EXCLUDED.billing_interval,
		synced_at = EXCLUDED.synced_at,
		updated_at = EXCLUDED.updated_at
	WHERE billing_subscriptions.synced_at IS NULL OR billing_subscriptions.synced_at <= EXCLUDED.synced_at`

func (s *Store) ApplySnapshot(ctx context.Context, userID uuid.UUID, snap billing.Snapshot, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, applySnapshot,
		userID,
		snap.CustomerID,
		snap.SubscriptionID,
		snap.SubscriptionItemID,
		snap.PriceID,
		string(snap.Status),
		snap.CancelAtPeriodEnd,
		snap.CancelAt,
		snap.CurrentPeriodEnd,
		snap.BillingInterval,
		at,
		s.now(),
	)
	if err != nil {
		return false, fmt.Errorf("apply snapshot: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM billing_webhook_events WHERE event_id = $1)`, eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check processed event: %w", err)
	}
	return exists, nil
}

func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO billing_webhook_events (event_id, event_type, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING`,
		eventID, eventType, at,
	)
	if err != nil {
		return false, fmt.Errorf("mark event processed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// PruneEvents deletes processed-event entries older than before. Providers stop
// redelivering after a few days, so the ledger does not need to grow forever.
func (s *Store) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM billing_webhook_events WHERE processed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune processed events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) scanOne(ctx context.Context, query string, arg any) (*billing.Record, error) {
	var (
		rec    billing.Record
		status string
	)
	err := s.db.QueryRow(ctx, query, arg).Scan(
		&rec.UserID,
		&rec.ProviderCustomerID,
		&rec.ProviderSubscriptionID,
		&rec.ProviderSubscriptionItemID,
		&rec.PriceID,
		&status,
		&rec.CancelAtPeriodEnd,
		&rec.CancelAt,
		&rec.CurrentPeriodEnd,
		&rec.BillingInterval,
		&rec.BillingEmail,
		&rec.SyncedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, billing.ErrRecordNotFound
		}
		return nil, fmt.Errorf("load billing record: %w", err)
	}
	rec.Status = billing.Status(status)
	return &rec, nil
}

