package billing

import "context"

// Notifier receives best-effort lifecycle notifications. It runs detached from the
// webhook request and its failures never affect billing state.
type Notifier interface {
	SubscriptionActivated(ctx context.Context, rec Record) error
	PaymentFailed(ctx context.Context, rec Record, failure PaymentFailed) error
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) SubscriptionActivated(context.Context, Record) error { return nil }

func (NopNotifier) PaymentFailed(context.Context, Record, PaymentFailed) error { return nil }
