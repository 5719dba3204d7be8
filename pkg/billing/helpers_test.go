package billing_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingsync/pkg/async"
	"github.com/dmitrymomot/billingsync/pkg/billing"
	"github.com/dmitrymomot/billingsync/pkg/billing/memstore"
)

const (
	priceMonthly = "price_monthly"
	priceYearly  = "price_yearly"
	priceOneTime = "price_lifetime"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CreateCustomer(ctx context.Context, params billing.CustomerParams) (string, error) {
	args := m.Called(ctx, params)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) DeleteCustomer(ctx context.Context, customerID string) error {
	args := m.Called(ctx, customerID)
	return args.Error(0)
}

func (m *mockProvider) GetPrice(ctx context.Context, priceID string) (*billing.Price, error) {
	args := m.Called(ctx, priceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Price), args.Error(1)
}

func (m *mockProvider) CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (string, error) {
	args := m.Called(ctx, params)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) CreatePortalSession(ctx context.Context, params billing.PortalParams) (string, error) {
	args := m.Called(ctx, params)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) GetSubscription(ctx context.Context, subscriptionID string) (*billing.Snapshot, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Snapshot), args.Error(1)
}

func (m *mockProvider) UpdateSubscriptionPrice(ctx context.Context, params billing.SwitchParams) (*billing.Snapshot, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Snapshot), args.Error(1)
}

func (m *mockProvider) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*billing.Snapshot, error) {
	args := m.Called(ctx, subscriptionID, cancel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Snapshot), args.Error(1)
}

func (m *mockProvider) ParseEvent(payload []byte, signature string) (*billing.Event, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Event), args.Error(1)
}

type activation struct {
	rec billing.Record
}

type failure struct {
	rec billing.Record
	pf  billing.PaymentFailed
}

type recordingNotifier struct {
	mu          sync.Mutex
	activations []activation
	failures    []failure
}

func (n *recordingNotifier) SubscriptionActivated(_ context.Context, rec billing.Record) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.activations = append(n.activations, activation{rec: rec})
	return nil
}

func (n *recordingNotifier) PaymentFailed(_ context.Context, rec billing.Record, pf billing.PaymentFailed) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, failure{rec: rec, pf: pf})
	return nil
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.activations), len(n.failures)
}

type fixture struct {
	svc      *billing.Service
	store    *memstore.Store
	provider *mockProvider
	notifier *recordingNotifier
	runner   *async.Runner
	now      time.Time
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() billing.Config {
	return billing.Config{
		PriceIDs:          []string{priceMonthly, priceYearly, priceOneTime},
		RedirectHosts:     []string{"app.example.com", "localhost:3000"},
		DefaultReturnURL:  "https://app.example.com/settings/billing",
		DefaultSuccessURL: "https://app.example.com/billing/success",
		DefaultCancelURL:  "https://app.example.com/billing/cancel",
		PriceCacheTTL:     time.Minute,
		PriceCacheSize:    16,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memstore.New())
}

func newFixtureWithStore(t *testing.T, store billing.Store) *fixture {
	t.Helper()

	f := &fixture{
		provider: &mockProvider{},
		notifier: &recordingNotifier{},
		runner:   async.NewRunner(async.WithLogger(discardLogger())),
		now:      baseTime,
	}
	if ms, ok := store.(*memstore.Store); ok {
		f.store = ms
	}

	svc, err := billing.NewService(testConfig(), store, f.provider,
		billing.WithLogger(discardLogger()),
		billing.WithClock(func() time.Time { return f.now }),
		billing.WithNotifier(f.notifier),
		billing.WithRunner(f.runner),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

// drain waits for detached side effects.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.runner.Shutdown(ctx))
}

func recurringPrice(id string) *billing.Price {
	return &billing.Price{ID: id, Active: true, Recurring: true, Interval: "month", IntervalCount: 1}
}

func oneTimePrice(id string) *billing.Price {
	return &billing.Price{ID: id, Active: true}
}

func activeSnapshot(customerID, priceID string) *billing.Snapshot {
	periodEnd := baseTime.Add(30 * 24 * time.Hour)
	return &billing.Snapshot{
		CustomerID:         customerID,
		SubscriptionID:     "sub_1",
		SubscriptionItemID: "si_1",
		PriceID:            priceID,
		Status:             billing.StatusActive,
		CurrentPeriodEnd:   &periodEnd,
		BillingInterval:    "monthly",
	}
}
