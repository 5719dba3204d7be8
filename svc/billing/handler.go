package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	core "github.com/dmitrymomot/billingsync/pkg/billing"
	"github.com/dmitrymomot/billingsync/pkg/binder"
	"github.com/dmitrymomot/billingsync/pkg/clientip"
	"github.com/dmitrymomot/billingsync/pkg/identity"
	"github.com/dmitrymomot/billingsync/pkg/logger"
	"github.com/dmitrymomot/billingsync/pkg/ratelimit"
)

// Service is the billing core as seen by the HTTP layer.
type Service interface {
	Status(ctx context.Context, userID uuid.UUID) (*core.Record, error)
	Prices() []core.CatalogEntry
	Checkout(ctx context.Context, caller core.Caller, req core.CheckoutRequest) (string, error)
	Portal(ctx context.Context, userID uuid.UUID, returnURL string) (string, error)
	SwitchPlan(ctx context.Context, userID uuid.UUID, newPriceID string) error
	Cancel(ctx context.Context, userID uuid.UUID) (time.Time, error)
	Resume(ctx context.Context, userID uuid.UUID) error
	HandleWebhook(ctx context.Context, payload []byte, signature string) (core.Outcome, error)
}

var _ Service = (*core.Service)(nil)

// Handler serves the billing HTTP surface.
type Handler struct {
	cfg      Config
	svc      Service
	verifier *identity.Verifier
	guard    *ratelimit.Guard
	metrics  *Metrics
	logger   *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMetrics enables request and webhook metrics.
func WithMetrics(m *Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler wires the HTTP layer. The verifier authenticates callers and the
// guard enforces per-class budgets.
func NewHandler(cfg Config, svc Service, verifier *identity.Verifier, guard *ratelimit.Guard, opts ...Option) *Handler {
	if svc == nil || verifier == nil || guard == nil {
		panic("billing: service, verifier and guard are required")
	}
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = "Stripe-Signature"
	}
	if cfg.MaxWebhookBytes <= 0 {
		cfg.MaxWebhookBytes = binder.DefaultMaxRawSize
	}
	h := &Handler{
		cfg:      cfg,
		svc:      svc,
		verifier: verifier,
		guard:    guard,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(logger.Component("billing-http"))
	return h
}

// Routes returns the router to mount under /billing. clientip.Middleware must run
// upstream so the webhook budget is keyed by the real client address.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.With(h.limit(ratelimit.ClassWebhook, clientip.FromRequest)).
		Post("/webhook", h.webhook)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(h.verifier, h.unauthorized))

		r.Get("/status", h.status)
		r.Get("/prices", h.prices)
		r.With(h.limit(ratelimit.ClassCheckout, userKey)).Post("/checkout", h.checkout)
		r.With(h.limit(ratelimit.ClassPortal, userKey)).Post("/portal", h.portal)
		r.Group(func(r chi.Router) {
			r.Use(h.limit(ratelimit.ClassMutate, userKey))
			r.Post("/switch", h.switchPlan)
			r.Post("/cancel", h.cancel)
			r.Post("/resume", h.resume)
		})
	})
	return r
}

func userKey(r *http.Request) string {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		return ""
	}
	return id.UserID.String()
}

func (h *Handler) limit(class ratelimit.Class, key ratelimit.KeyFunc) func(http.Handler) http.Handler {
	return ratelimit.Middleware(h.guard, class, key,
		ratelimit.WithErrorLogger(h.logger),
		ratelimit.WithOnLimitReached(func(w http.ResponseWriter, r *http.Request, _ *ratelimit.Result) {
			if h.metrics != nil {
				h.metrics.RateLimited.WithLabelValues(string(class)).Inc()
			}
			h.logger.WarnContext(r.Context(), "rate limit exceeded", slog.String("class", string(class)))
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many requests"})
		}),
	)
}

func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.DebugContext(r.Context(), "caller authentication failed", logger.Error(err))
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
}

func caller(r *http.Request) core.Caller {
	id, _ := identity.FromContext(r.Context())
	return core.Caller{UserID: id.UserID, Email: id.Email, Name: id.Name}
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Status(r.Context(), caller(r).UserID)
	if err != nil {
		h.writeError(w, r, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, newRecordResponse(rec))
}

func (h *Handler) prices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, pricesResponse{Prices: h.svc.Prices()})
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := binder.JSON(r, &req, false); err != nil {
		h.writeError(w, r, "checkout", err)
		return
	}
	url, err := h.svc.Checkout(r.Context(), caller(r), core.CheckoutRequest{
		PriceID:    req.PriceID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		h.writeError(w, r, "checkout", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionURL: url})
}

func (h *Handler) portal(w http.ResponseWriter, r *http.Request) {
	var req portalRequest
	if err := binder.JSON(r, &req, true); err != nil {
		h.writeError(w, r, "portal", err)
		return
	}
	url, err := h.svc.Portal(r.Context(), caller(r).UserID, req.ReturnURL)
	if err != nil {
		h.writeError(w, r, "portal", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionURL: url})
}

func (h *Handler) switchPlan(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := binder.JSON(r, &req, false); err != nil {
		h.writeError(w, r, "switch", err)
		return
	}
	if err := h.svc.SwitchPlan(r.Context(), caller(r).UserID, req.NewPriceID); err != nil {
		h.writeError(w, r, "switch", err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	at, err := h.svc.Cancel(r.Context(), caller(r).UserID)
	if err != nil {
		h.writeError(w, r, "cancel", err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{OK: true, EffectiveAt: at})
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Resume(r.Context(), caller(r).UserID); err != nil {
		h.writeError(w, r, "resume", err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// webhook reads the raw body untouched, since the signature covers the exact bytes.
// Errors from the reconciler are transient and answered with 500 so the provider
// redelivers; everything else is acknowledged with its outcome.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := binder.Raw(r, h.cfg.MaxWebhookBytes)
	if err != nil {
		h.writeError(w, r, "webhook", err)
		return
	}

	outcome, err := h.svc.HandleWebhook(r.Context(), payload, r.Header.Get(h.cfg.SignatureHeader))
	if err != nil {
		if errors.Is(err, core.ErrUnauthorized) {
			h.logger.WarnContext(r.Context(), "webhook signature rejected", logger.Error(err))
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid signature"})
			return
		}
		h.writeError(w, r, "webhook", err)
		return
	}

	if h.metrics != nil {
		h.metrics.WebhookEvents.WithLabelValues(string(outcome)).Inc()
	}
	writeJSON(w, http.StatusOK, webhookResponse{Received: true, Status: outcome})
}
