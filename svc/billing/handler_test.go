package billing_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingsync/pkg/async"
	core "github.com/dmitrymomot/billingsync/pkg/billing"
	"github.com/dmitrymomot/billingsync/pkg/billing/memstore"
	"github.com/dmitrymomot/billingsync/pkg/clientip"
	"github.com/dmitrymomot/billingsync/pkg/identity"
	"github.com/dmitrymomot/billingsync/pkg/ratelimit"
	billing "github.com/dmitrymomot/billingsync/svc/billing"
)

const (
	priceMonthly = "price_monthly"
	priceYearly  = "price_yearly"
	sigOK        = "sig-ok"
	returnURL    = "https://app.example.com/settings/billing"
)

// fakeProvider keeps subscriptions in memory. Events are registered by payload
// and accepted only with the sigOK signature.
type fakeProvider struct {
	mu        sync.Mutex
	customers int
	subs      map[string]*core.Snapshot
	events    map[string]*core.Event
	upstream  error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		subs:   make(map[string]*core.Snapshot),
		events: make(map[string]*core.Event),
	}
}

func (p *fakeProvider) addSubscription(snap core.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs[snap.SubscriptionID] = &snap
}

func (p *fakeProvider) addEvent(payload string, ev *core.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events[payload] = ev
}

func (p *fakeProvider) CreateCustomer(context.Context, core.CustomerParams) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customers++
	return fmt.Sprintf("cus_%d", p.customers), nil
}

func (p *fakeProvider) DeleteCustomer(context.Context, string) error { return nil }

func (p *fakeProvider) GetPrice(_ context.Context, priceID string) (*core.Price, error) {
	return &core.Price{ID: priceID, Active: true, Recurring: true, Interval: "month", IntervalCount: 1}, nil
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, params core.CheckoutParams) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.upstream != nil {
		return "", p.upstream
	}
	return "https://checkout.test/" + params.CustomerID + "/" + params.PriceID, nil
}

func (p *fakeProvider) CreatePortalSession(_ context.Context, params core.PortalParams) (string, error) {
	return "https://portal.test/" + params.CustomerID + "?return=" + url.QueryEscape(params.ReturnURL), nil
}

func (p *fakeProvider) GetSubscription(_ context.Context, id string) (*core.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sub, ok := p.subs[id]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	out := *sub
	return &out, nil
}

func (p *fakeProvider) UpdateSubscriptionPrice(_ context.Context, params core.SwitchParams) (*core.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sub, ok := p.subs[params.SubscriptionID]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	sub.PriceID = params.PriceID
	out := *sub
	return &out, nil
}

func (p *fakeProvider) SetCancelAtPeriodEnd(_ context.Context, id string, cancel bool) (*core.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sub, ok := p.subs[id]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	sub.CancelAtPeriodEnd = cancel
	out := *sub
	return &out, nil
}

func (p *fakeProvider) ParseEvent(payload []byte, signature string) (*core.Event, error) {
	if signature != sigOK {
		return nil, core.ErrInvalidSignature
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ev, ok := p.events[string(payload)]
	if !ok {
		return nil, core.ErrMalformedEvent
	}
	return ev, nil
}

// brokenLedger fails every deduplication lookup.
type brokenLedger struct {
	*memstore.Store
}

func (brokenLedger) IsEventProcessed(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

type env struct {
	router   http.Handler
	provider *fakeProvider
	store    *memstore.Store
	verifier *identity.Verifier
	metrics  *billing.Metrics
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testHTTPConfig() billing.Config {
	return billing.Config{
		RateLimitWindow: time.Minute,
		CheckoutLimit:   100,
		PortalLimit:     100,
		MutateLimit:     100,
		WebhookLimit:    100,
		SignatureHeader: "Stripe-Signature",
		MaxWebhookBytes: 4096,
	}
}

func newEnv(t *testing.T, cfg billing.Config, store core.Store) *env {
	t.Helper()

	e := &env{provider: newFakeProvider(), metrics: billing.NewMetrics()}
	if ms, ok := store.(*memstore.Store); ok {
		e.store = ms
	}

	svc, err := core.NewService(core.Config{
		PriceIDs:          []string{priceMonthly, priceYearly},
		RedirectHosts:     []string{"app.example.com"},
		DefaultReturnURL:  returnURL,
		DefaultSuccessURL: "https://app.example.com/billing/success",
		DefaultCancelURL:  "https://app.example.com/billing/cancel",
	}, store, e.provider,
		core.WithLogger(discardLogger()),
		core.WithRunner(async.NewRunner(async.WithLogger(discardLogger()))),
	)
	require.NoError(t, err)

	e.verifier, err = identity.NewVerifier(identity.Config{Secret: "test-secret", Leeway: time.Second})
	require.NoError(t, err)

	guard, err := ratelimit.NewGuard(ratelimit.NewMemoryStore(), cfg.Rules())
	require.NoError(t, err)

	resolver, err := clientip.NewResolver(clientip.Config{})
	require.NoError(t, err)

	h := billing.NewHandler(cfg, svc, e.verifier, guard,
		billing.WithLogger(discardLogger()),
		billing.WithMetrics(e.metrics),
	)
	e.router = billing.NewRouter(h, billing.RouterConfig{
		ClientIP: resolver,
		Metrics:  e.metrics,
		Logger:   discardLogger(),
	})
	return e
}

func (e *env) token(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	tok, err := e.verifier.Issue(identity.Identity{UserID: userID, Email: "user@example.com"}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *env) do(t *testing.T, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func (e *env) webhook(t *testing.T, payload, signature string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec.Code, out
}

func TestHandler_SubscriptionLifecycle(t *testing.T) {
	t.Parallel()
	e := newEnv(t, testHTTPConfig(), memstore.New())
	userID := uuid.New()
	tok := e.token(t, userID)

	code, body := e.do(t, http.MethodPost, "/billing/checkout", tok, `{"priceId":"price_monthly"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "https://checkout.test/cus_1/price_monthly", body["sessionUrl"])

	periodEnd := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)
	e.provider.addSubscription(core.Snapshot{
		CustomerID:         "cus_1",
		SubscriptionID:     "sub_1",
		SubscriptionItemID: "si_1",
		PriceID:            priceMonthly,
		Status:             core.StatusActive,
		CurrentPeriodEnd:   &periodEnd,
		BillingInterval:    "monthly",
	})
	snap, err := e.provider.GetSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	e.provider.addEvent(`{"id":"evt_1"}`, &core.Event{
		ID:        "evt_1",
		Type:      "customer.subscription.created",
		CreatedAt: time.Now().Add(-time.Minute),
		Payload:   core.SubscriptionChanged{Snapshot: *snap},
	})

	code, body = e.webhook(t, `{"id":"evt_1"}`, sigOK)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["received"])
	assert.Equal(t, string(core.OutcomeApplied), body["status"])

	code, body = e.webhook(t, `{"id":"evt_1"}`, sigOK)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(core.OutcomeDuplicate), body["status"])

	code, body = e.do(t, http.MethodGet, "/billing/status", tok, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "active", body["status"])
	assert.Equal(t, true, body["entitled"])
	assert.Equal(t, priceMonthly, body["price_id"])
	assert.Equal(t, true, body["has_billing_account"])
	assert.Equal(t, false, body["cancel_at_period_end"])
	assert.NotContains(t, body, "provider_customer_id")

	code, body = e.do(t, http.MethodPost, "/billing/cancel", tok, "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["ok"])
	effectiveAt, err := time.Parse(time.RFC3339, body["effectiveAt"].(string))
	require.NoError(t, err)
	assert.True(t, periodEnd.Equal(effectiveAt))

	_, body = e.do(t, http.MethodGet, "/billing/status", tok, "")
	assert.Equal(t, true, body["cancel_at_period_end"])
	assert.Equal(t, true, body["entitled"], "still entitled until the period ends")

	code, _ = e.do(t, http.MethodPost, "/billing/resume", tok, "")
	require.Equal(t, http.StatusOK, code)

	code, body = e.do(t, http.MethodPost, "/billing/resume", tok, "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "subscription is not pending cancellation", body["error"])

	code, body = e.do(t, http.MethodPost, "/billing/switch", tok, `{"newPriceId":"price_monthly"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "already on this plan", body["error"])

	code, _ = e.do(t, http.MethodPost, "/billing/switch", tok, `{"newPriceId":"price_yearly"}`)
	require.Equal(t, http.StatusOK, code)

	rec, err := e.store.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, priceYearly, rec.PriceID)
	assert.False(t, rec.CancelAtPeriodEnd)
}

func TestHandler_Authentication(t *testing.T) {
	t.Parallel()
	e := newEnv(t, testHTTPConfig(), memstore.New())

	for _, path := range []string{"/billing/status", "/billing/prices"} {
		code, body := e.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, code, path)
		assert.Equal(t, "unauthorized", body["error"])
	}

	code, _ := e.do(t, http.MethodPost, "/billing/checkout", "not-a-jwt", `{"priceId":"price_monthly"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Zero(t, e.provider.customers, "no provider call without identity")
}

func TestHandler_StatusWithoutRecord(t *testing.T) {
	t.Parallel()
	e := newEnv(t, testHTTPConfig(), memstore.New())

	req := httptest.NewRequest(http.MethodGet, "/billing/status", nil)
	req.Header.Set("Authorization", "Bearer "+e.token(t, uuid.New()))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `null`, rec.Body.String())
}

func TestHandler_Prices(t *testing.T) {
	t.Parallel()
	e := newEnv(t, testHTTPConfig(), memstore.New())

	code, body := e.do(t, http.MethodGet, "/billing/prices", e.token(t, uuid.New()), "")
	require.Equal(t, http.StatusOK, code)
	prices, ok := body["prices"].([]any)
	require.True(t, ok)
	assert.Len(t, prices, 2)
}

func TestHandler_CheckoutValidation(t *testing.T) {
	t.Parallel()
	e := newEnv(t, testHTTPConfig(), memstore.New())
	tok := e.token(t, uuid.New())

	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "missing price", body: `{}`, code: http.StatusBadRequest},
		{name: "unknown price", body: `{"priceId":"price_other"}`, code: http.StatusBadRequest},
		{name: "unknown field", body: `{"priceId":"price_monthly","extra":1}`, code: http.StatusBadRequest},
		{name: "broken json", body: `{"priceId":`, code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := e.do(t, http.MethodPost, "/billing/checkout", tok, tt.body)
			assert.Equal(t, tt.code, code)
			assert.NotEmpty(t, body["error"])
		})
	}
	assert.Zero(t, e.provider.customers)
}

func TestHandler_CheckoutUnsupportedMediaType(t *testing.T) {
	t.Parallel()
	e := newEnv(t, testHTTPConfig(), memstore.New())

	req := httptest.NewRequest(http.MethodPost, "/billing/checkout", strings.NewReader(`priceId=price_monthly`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+e.token(t, uuid.New()))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestHandler_Portal(t *testing.T) {
	t.Parallel()
	e := newEnv(t, testHTTPConfig(), memstore.New())
	userID := uuid.New()
	tok := e.token(t, userID)

	code, body := e.do(t, http.MethodPost, "/billing/portal", tok, "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "no billing account", body["error"])

	_, err := e.store.AttachCustomer(context.Background(), userID, "cus_portal", "", time.Now())
	require.NoError(t, err)

	code, body = e.do(t, http.MethodPost, "/billing/portal", tok, `{"returnUrl":"https://evil.example.net/phish"}`)
	require.Equal(t, http.StatusOK, code)
	sessionURL := body["sessionUrl"].(string)
	assert.Contains(t, sessionURL, url.QueryEscape(returnURL))
	assert.NotContains(t, sessionURL, "evil.example.net")

	code, body = e.do(t, http.MethodPost, "/billing/portal", tok, `{"returnUrl":"https://app.example.com/account"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body["sessionUrl"], url.QueryEscape("https://app.example.com/account"))
}

func TestHandler_UpstreamFailureIsGeneric(t *testing.T) {
	t.Parallel()
	e := newEnv(t, testHTTPConfig(), memstore.New())
	e.provider.upstream = errors.New("stripe: api key sk_live_secret rejected")

	req := httptest.NewRequest(http.MethodPost, "/billing/checkout", strings.NewReader(`{"priceId":"price_monthly"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token(t, uuid.New()))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"upstream provider error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "sk_live")
}

func TestHandler_MutationsWithoutSubscription(t *testing.T) {
	t.Parallel()
	e := newEnv(t, testHTTPConfig(), memstore.New())
	tok := e.token(t, uuid.New())

	code, _ := e.do(t, http.MethodPost, "/billing/cancel", tok, "")
	assert.Equal(t, http.StatusNotFound, code)

	code, body := e.do(t, http.MethodPost, "/billing/resume", tok, "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "subscription is not pending cancellation", body["error"])

	code, _ = e.do(t, http.MethodPost, "/billing/switch", tok, `{"newPriceId":"price_yearly"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = e.do(t, http.MethodPost, "/billing/switch", tok, `{"newPriceId":"price_unknown"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHandler_Webhook(t *testing.T) {
	t.Parallel()

	t.Run("invalid signature", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, testHTTPConfig(), memstore.New())
		code, body := e.webhook(t, `{"id":"evt_x"}`, "sig-forged")
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, "invalid signature", body["error"])
	})

	t.Run("malformed is acknowledged", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, testHTTPConfig(), memstore.New())
		code, body := e.webhook(t, `{"garbage":true}`, sigOK)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, string(core.OutcomeMalformed), body["status"])
		assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.WebhookEvents.WithLabelValues("malformed")))
	})

	t.Run("unattributed is acknowledged", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, testHTTPConfig(), memstore.New())
		e.provider.addEvent(`{"id":"evt_orphan"}`, &core.Event{
			ID:        "evt_orphan",
			Type:      "customer.subscription.updated",
			CreatedAt: time.Now(),
			Payload: core.SubscriptionChanged{Snapshot: core.Snapshot{
				CustomerID:     "cus_unknown",
				SubscriptionID: "sub_orphan",
				Status:         core.StatusActive,
			}},
		})
		code, body := e.webhook(t, `{"id":"evt_orphan"}`, sigOK)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, string(core.OutcomeUnattributed), body["status"])
	})

	t.Run("store failure asks for redelivery", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, testHTTPConfig(), brokenLedger{Store: memstore.New()})
		e.provider.addEvent(`{"id":"evt_2"}`, &core.Event{
			ID:        "evt_2",
			Type:      "invoice.paid",
			CreatedAt: time.Now(),
			Payload:   core.InvoicePaid{InvoiceID: "in_1", CustomerID: "cus_1", SubscriptionID: "sub_1"},
		})

		req := httptest.NewRequest(http.MethodPost, "/billing/webhook", strings.NewReader(`{"id":"evt_2"}`))
		req.Header.Set("Stripe-Signature", sigOK)
		rec := httptest.NewRecorder()
		e.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})

	t.Run("oversized payload", func(t *testing.T) {
		t.Parallel()
		cfg := testHTTPConfig()
		cfg.MaxWebhookBytes = 16
		e := newEnv(t, cfg, memstore.New())
		code, _ := e.webhook(t, strings.Repeat("x", 64), sigOK)
		assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	})
}

func TestHandler_RateLimit(t *testing.T) {
	t.Parallel()
	cfg := testHTTPConfig()
	cfg.CheckoutLimit = 1
	e := newEnv(t, cfg, memstore.New())
	tok := e.token(t, uuid.New())

	code, _ := e.do(t, http.MethodPost, "/billing/checkout", tok, `{}`)
	assert.Equal(t, http.StatusBadRequest, code, "rejected requests still spend the budget")

	code, body := e.do(t, http.MethodPost, "/billing/checkout", tok, `{"priceId":"price_monthly"}`)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "too many requests", body["error"])
	assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.RateLimited.WithLabelValues("checkout")))
	assert.Zero(t, e.provider.customers)

	// other users and other classes keep their own budgets
	code, _ = e.do(t, http.MethodPost, "/billing/checkout", e.token(t, uuid.New()), `{"priceId":"price_monthly"}`)
	assert.Equal(t, http.StatusOK, code)
	code, _ = e.do(t, http.MethodPost, "/billing/portal", tok, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRouter_ProbesAndMetrics(t *testing.T) {
	t.Parallel()
	e := newEnv(t, testHTTPConfig(), memstore.New())

	code, body := e.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, _ = e.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, code)

	tok := e.token(t, uuid.New())
	e.do(t, http.MethodGet, "/billing/status", tok, "")
	assert.Equal(t, float64(1),
		testutil.ToFloat64(e.metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/billing/status", "200")))
	assert.Positive(t, testutil.CollectAndCount(e.metrics.HTTPDuration))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "billingsync_http_requests_total")

	code, _ = e.do(t, http.MethodGet, "/nowhere", "", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, float64(1),
		testutil.ToFloat64(e.metrics.HTTPRequests.WithLabelValues(http.MethodGet, "unmatched", "404")))
}
