package billing

import (
	"context"
	"errors"
	"time"

	core "github.com/dmitrymomot/billingsync/pkg/billing"
)

// instrumentedProvider records latency and result of every provider call.
type instrumentedProvider struct {
	next    core.Provider
	metrics *Metrics
}

// InstrumentProvider wraps p so each call is counted and timed.
func InstrumentProvider(p core.Provider, m *Metrics) core.Provider {
	if m == nil {
		return p
	}
	return &instrumentedProvider{next: p, metrics: m}
}

func (p *instrumentedProvider) observe(method string, start time.Time, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
	default:
		result = "error"
	}
	p.metrics.ProviderCalls.WithLabelValues(method, result).Inc()
	p.metrics.ProviderDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func (p *instrumentedProvider) CreateCustomer(ctx context.Context, params core.CustomerParams) (id string, err error) {
	defer func(start time.Time) { p.observe("create_customer", start, err) }(time.Now())
	return p.next.CreateCustomer(ctx, params)
}

func (p *instrumentedProvider) DeleteCustomer(ctx context.Context, customerID string) (err error) {
	defer func(start time.Time) { p.observe("delete_customer", start, err) }(time.Now())
	return p.next.DeleteCustomer(ctx, customerID)
}

func (p *instrumentedProvider) GetPrice(ctx context.Context, priceID string) (price *core.Price, err error) {
	defer func(start time.Time) { p.observe("get_price", start, err) }(time.Now())
	return p.next.GetPrice(ctx, priceID)
}

func (p *instrumentedProvider) CreateCheckoutSession(ctx context.Context, params core.CheckoutParams) (url string, err error) {
	defer func(start time.Time) { p.observe("create_checkout_session", start, err) }(time.Now())
	return p.next.CreateCheckoutSession(ctx, params)
}

func (p *instrumentedProvider) CreatePortalSession(ctx context.Context, params core.PortalParams) (url string, err error) {
	defer func(start time.Time) { p.observe("create_portal_session", start, err) }(time.Now())
	return p.next.CreatePortalSession(ctx, params)
}

func (p *instrumentedProvider) GetSubscription(ctx context.Context, subscriptionID string) (snap *core.Snapshot, err error) {
	defer func(start time.Time) { p.observe("get_subscription", start, err) }(time.Now())
	return p.next.GetSubscription(ctx, subscriptionID)
}

func (p *instrumentedProvider) UpdateSubscriptionPrice(ctx context.Context, params core.SwitchParams) (snap *core.Snapshot, err error) {
	defer func(start time.Time) { p.observe("update_subscription_price", start, err) }(time.Now())
	return p.next.UpdateSubscriptionPrice(ctx, params)
}

func (p *instrumentedProvider) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (snap *core.Snapshot, err error) {
	defer func(start time.Time) { p.observe("set_cancel_at_period_end", start, err) }(time.Now())
	return p.next.SetCancelAtPeriodEnd(ctx, subscriptionID, cancel)
}

// ParseEvent is local signature verification, not a network call.
func (p *instrumentedProvider) ParseEvent(payload []byte, signature string) (*core.Event, error) {
	return p.next.ParseEvent(payload, signature)
}

// instrumentedNotifier counts delivered and failed notifications.
type instrumentedNotifier struct {
	next    core.Notifier
	metrics *Metrics
}

// InstrumentNotifier wraps n so each notification is counted by result.
func InstrumentNotifier(n core.Notifier, m *Metrics) core.Notifier {
	if m == nil {
		return n
	}
	return &instrumentedNotifier{next: n, metrics: m}
}

func (n *instrumentedNotifier) count(kind string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	n.metrics.NotificationsSent.WithLabelValues(kind, result).Inc()
}

func (n *instrumentedNotifier) SubscriptionActivated(ctx context.Context, rec core.Record) error {
	err := n.next.SubscriptionActivated(ctx, rec)
	n.count("subscription_activated", err)
	return err
}

func (n *instrumentedNotifier) PaymentFailed(ctx context.Context, rec core.Record, failure core.PaymentFailed) error {
	err := n.next.PaymentFailed(ctx, rec, failure)
	n.count("payment_failed", err)
	return err
}
