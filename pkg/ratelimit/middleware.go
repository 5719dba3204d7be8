package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrymomot/billingsync/pkg/logger"
)

// MiddlewareOption configures middleware behavior.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	onLimitReached func(w http.ResponseWriter, r *http.Request, result *Result)
	onError        func(r *http.Request, err error)
	now            func() time.Time
}

// WithOnLimitReached sets a custom handler for rejected requests.
func WithOnLimitReached(fn func(w http.ResponseWriter, r *http.Request, result *Result)) MiddlewareOption {
	return func(c *middlewareConfig) {
		if fn != nil {
			c.onLimitReached = fn
		}
	}
}

// WithErrorLogger logs store failures. Requests are still let through.
func WithErrorLogger(log *slog.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		if log != nil {
			c.onError = func(r *http.Request, err error) {
				log.WarnContext(r.Context(), "rate limit check failed, allowing request", logger.Error(err))
			}
		}
	}
}

// Middleware enforces the class budget of g keyed by keyFunc. Requests with an
// empty key pass through, and store failures fail open.
func Middleware(g *Guard, class Class, keyFunc KeyFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if keyFunc == nil {
		panic("ratelimit.Middleware: keyFunc is required")
	}
	if _, ok := g.Limiter(class); !ok {
		panic("ratelimit.Middleware: no rule for class " + string(class))
	}

	cfg := &middlewareConfig{
		onLimitReached: TooManyRequests,
		onError:        func(*http.Request, error) {},
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := keyFunc(r)
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}

			result, err := g.Allow(r.Context(), class, id)
			if err != nil {
				cfg.onError(r, err)
				next.ServeHTTP(w, r)
				return
			}

			SetHeaders(w, result, cfg.now())
			if !result.Allowed {
				cfg.onLimitReached(w, r, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetHeaders writes the X-RateLimit-* headers, plus Retry-After on rejection.
func SetHeaders(w http.ResponseWriter, result *Result, now time.Time) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if !result.Allowed {
		retryAfter := int(result.RetryAfter(now).Seconds())
		w.Header().Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
	}
}

// TooManyRequests is the default rejection handler.
func TooManyRequests(w http.ResponseWriter, _ *http.Request, _ *Result) {
	http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
}
