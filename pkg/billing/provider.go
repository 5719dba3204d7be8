package billing

import (
	"context"
	"time"
)

// CheckoutMode distinguishes one-time purchases from recurring subscriptions.
type CheckoutMode string

const (
	CheckoutModePayment      CheckoutMode = "payment"
	CheckoutModeSubscription CheckoutMode = "subscription"
)

// Price is the provider's view of a purchasable price.
type Price struct {
	ID            string
	Active        bool
	Recurring     bool
	Interval      string
	IntervalCount int64
}

// Mode returns the checkout mode required to purchase the price.
func (p *Price) Mode() CheckoutMode {
	if p.Recurring {
		return CheckoutModeSubscription
	}
	return CheckoutModePayment
}

// Label returns the billing interval label of the price.
func (p *Price) Label() string {
	if !p.Recurring {
		return IntervalOneTime
	}
	return IntervalLabel(p.Interval, p.IntervalCount)
}

// CustomerParams describes a provider customer to create.
type CustomerParams struct {
	UserID         string
	Email          string
	Name           string
	IdempotencyKey string
}

// CheckoutParams describes a hosted checkout session.
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	Mode       CheckoutMode
	SuccessURL string
	CancelURL  string
	// UserID is stamped into session (and subscription) metadata for webhook attribution.
	UserID string
}

// PortalParams describes a hosted self-service portal session.
type PortalParams struct {
	CustomerID string
	ReturnURL  string
}

// SwitchParams describes a price replacement on a subscription item.
type SwitchParams struct {
	SubscriptionID     string
	SubscriptionItemID string
	PriceID            string
}

// Provider abstracts the payment provider. Implementations must bound every call
// with a timeout and return errors that are safe to wrap as upstream failures.
type Provider interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)
	DeleteCustomer(ctx context.Context, customerID string) error
	GetPrice(ctx context.Context, priceID string) (*Price, error)

	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error)
	CreatePortalSession(ctx context.Context, params PortalParams) (string, error)

	GetSubscription(ctx context.Context, subscriptionID string) (*Snapshot, error)
	UpdateSubscriptionPrice(ctx context.Context, params SwitchParams) (*Snapshot, error)
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*Snapshot, error)

	// ParseEvent verifies the signature over the raw payload and decodes the event.
	// Returns ErrInvalidSignature or ErrMalformedEvent.
	ParseEvent(payload []byte, signature string) (*Event, error)
}

// Event is a verified provider notification.
type Event struct {
	ID        string
	Type      string
	CreatedAt time.Time
	Payload   EventPayload
}

// EventPayload is the closed set of event shapes the reconciler understands.
type EventPayload interface {
	isEventPayload()
}

// SubscriptionChanged carries a full subscription snapshot.
type SubscriptionChanged struct {
	Snapshot Snapshot
}

// CheckoutCompleted is emitted once a hosted checkout finishes.
type CheckoutCompleted struct {
	SessionID      string
	Mode           CheckoutMode
	CustomerID     string
	SubscriptionID string
	PriceID        string
	UserRef        string
	CustomerEmail  string
	// Paid is false while an asynchronous payment method is still settling.
	Paid bool
}

// InvoicePaid signals a successful charge on a subscription.
type InvoicePaid struct {
	InvoiceID      string
	CustomerID     string
	SubscriptionID string
}

// PaymentFailed signals a failed charge on a subscription.
type PaymentFailed struct {
	InvoiceID        string
	CustomerID       string
	SubscriptionID   string
	CustomerEmail    string
	AmountDue        int64
	Currency         string
	HostedInvoiceURL string
	AttemptCount     int64
}

// Unhandled is any event type outside the known set. It is acknowledged and ignored.
type Unhandled struct{}

func (SubscriptionChanged) isEventPayload() {}
func (CheckoutCompleted) isEventPayload()   {}
func (InvoicePaid) isEventPayload()         {}
func (PaymentFailed) isEventPayload()       {}
func (Unhandled) isEventPayload()           {}
