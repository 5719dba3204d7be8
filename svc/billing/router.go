package billing

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/billingsync/pkg/clientip"
	"github.com/dmitrymomot/billingsync/pkg/httpserver"
	"github.com/dmitrymomot/billingsync/pkg/requestid"
)

// RouterConfig gathers what the root router needs besides the billing handler.
type RouterConfig struct {
	ClientIP      *clientip.Resolver
	Metrics       *Metrics
	Logger        *slog.Logger
	HealthTimeout time.Duration
	// Checks back the readiness probe, e.g. the database ping.
	Checks []httpserver.Check
}

// NewRouter builds the process router: request ids, client address resolution,
// metrics, the probes and the billing routes under /billing.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware())
	if cfg.ClientIP != nil {
		r.Use(clientip.Middleware(cfg.ClientIP))
	}
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	timeout := cfg.HealthTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	r.Get("/healthz", httpserver.HealthCheckHandler(cfg.Logger, timeout))
	r.Get("/readyz", httpserver.HealthCheckHandler(cfg.Logger, timeout, cfg.Checks...))

	r.Mount("/billing", h.Routes())
	return r
}
