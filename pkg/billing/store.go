package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists one Record per user plus the ledger of processed webhook events.
//
// Writes that carry a timestamp are last-writer-wins by that timestamp and must be
// decided atomically by the store, never by a read followed by a write.
type Store interface {
	// Get returns ErrRecordNotFound when the user has no record.
	Get(ctx context.Context, userID uuid.UUID) (*Record, error)
	// FindByCustomerID returns ErrRecordNotFound when no record references the customer.
	FindByCustomerID(ctx context.Context, customerID string) (*Record, error)

	// AttachCustomer creates the record with status inactive if missing and sets the
	// provider customer id only when none is stored. It returns the stored id, which
	// differs from customerID when a concurrent caller won.
	AttachCustomer(ctx context.Context, userID uuid.UUID, customerID, email string, at time.Time) (string, error)

	// ApplySnapshot replaces the provider-owned fields when the stored synced_at is unset
	// or not newer than at, creating the record if missing. The customer id is only filled when
	// empty. Reports whether the snapshot was applied.
	ApplySnapshot(ctx context.Context, userID uuid.UUID, snap Snapshot, at time.Time) (bool, error)

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	// MarkEventProcessed is idempotent; it reports whether this call recorded the event.
	MarkEventProcessed(ctx context.Context, eventID, eventType string, at time.Time) (bool, error)
}

// EventPruner is implemented by stores that can drop old ledger entries. An event
// older than the provider's redelivery horizon can never arrive again.
type EventPruner interface {
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
}
