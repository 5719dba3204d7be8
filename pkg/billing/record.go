package billing

import (
	"time"

	"github.com/google/uuid"
)

// Status is the local subscription status.
type Status string

const (
	StatusInactive Status = "inactive"
	StatusTrialing Status = "trialing"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// IsEntitled reports whether the status grants access to the paid product.
func (s Status) IsEntitled() bool {
	return s == StatusActive || s == StatusTrialing
}

func (s Status) String() string { return string(s) }

// Record is the single local subscription row owned by a user.
type Record struct {
	UserID                     uuid.UUID
	ProviderCustomerID         string
	ProviderSubscriptionID     string
	ProviderSubscriptionItemID string
	PriceID                    string
	Status                     Status
	CancelAtPeriodEnd          bool
	CancelAt                   *time.Time
	CurrentPeriodEnd           *time.Time
	BillingInterval            string
	BillingEmail               string
	// SyncedAt is the provider time of the last applied snapshot; nil until the
	// first one. Snapshots older than it are discarded.
	SyncedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasSubscription reports whether a recurring provider subscription is linked.
func (r *Record) HasSubscription() bool {
	return r != nil && r.ProviderSubscriptionID != "" && r.ProviderSubscriptionItemID != ""
}

// Supersedes reports whether the record's live subscription outranks snap, which
// describes another subscription and grants no access. Late events from a replaced
// subscription must not demote the user.
func (r *Record) Supersedes(snap Snapshot) bool {
	return r != nil &&
		r.ProviderSubscriptionID != "" &&
		snap.SubscriptionID != "" &&
		snap.SubscriptionID != r.ProviderSubscriptionID &&
		r.Status != StatusCanceled &&
		!snap.Status.IsEntitled()
}

// PendingCancellation reports whether a cancellation is scheduled but not yet effective.
func (r *Record) PendingCancellation() bool {
	return r != nil && r.CancelAtPeriodEnd && r.Status != StatusCanceled
}

// Snapshot is the set of fields the provider owns.
// It always replaces those fields wholesale; it is never merged.
type Snapshot struct {
	CustomerID         string
	SubscriptionID     string
	SubscriptionItemID string
	PriceID            string
	Status             Status
	CancelAtPeriodEnd  bool
	CancelAt           *time.Time
	CurrentPeriodEnd   *time.Time
	BillingInterval    string

	// MetadataUserID is the user id stamped on the provider object, if any.
	// Used for attribution only, never persisted.
	MetadataUserID string
}

// CancellationEffectiveAt returns when a scheduled cancellation takes effect.
func (s *Snapshot) CancellationEffectiveAt(now time.Time) time.Time {
	switch {
	case s.CancelAt != nil:
		return *s.CancelAt
	case s.CurrentPeriodEnd != nil:
		return *s.CurrentPeriodEnd
	default:
		return now
	}
}

// MapProviderStatus maps a provider subscription status onto the local status set.
func MapProviderStatus(providerStatus string) Status {
	switch providerStatus {
	case "trialing":
		return StatusTrialing
	case "active":
		return StatusActive
	case "past_due", "unpaid":
		return StatusPastDue
	case "canceled", "incomplete_expired":
		return StatusCanceled
	default:
		return StatusInactive
	}
}
