package billing

import (
	"time"

	"github.com/dmitrymomot/billingsync/pkg/ratelimit"
)

// Backend names accepted by RATELIMIT_BACKEND.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds the HTTP surface settings.
type Config struct {
	// RateLimitBackend selects the counter store: memory (per process) or redis (shared).
	RateLimitBackend string        `env:"RATELIMIT_BACKEND" envDefault:"memory"`
	RateLimitWindow  time.Duration `env:"RATELIMIT_WINDOW" envDefault:"1m"`
	CheckoutLimit    int           `env:"RATELIMIT_CHECKOUT" envDefault:"10"`
	PortalLimit      int           `env:"RATELIMIT_PORTAL" envDefault:"10"`
	MutateLimit      int           `env:"RATELIMIT_MUTATE" envDefault:"20"`
	WebhookLimit     int           `env:"RATELIMIT_WEBHOOK" envDefault:"600"`

	// SignatureHeader carries the provider's webhook signature.
	SignatureHeader string `env:"BILLING_SIGNATURE_HEADER" envDefault:"Stripe-Signature"`
	MaxWebhookBytes int64  `env:"BILLING_MAX_WEBHOOK_BYTES" envDefault:"1048576"`

	// EventRetention is how long processed webhook ids are kept for deduplication.
	EventRetention time.Duration `env:"BILLING_EVENT_RETENTION" envDefault:"720h"`
	PruneInterval  time.Duration `env:"BILLING_PRUNE_INTERVAL" envDefault:"1h"`

	HealthTimeout time.Duration `env:"HEALTH_CHECK_TIMEOUT" envDefault:"2s"`
}

// Rules returns the per-class budgets.
func (c Config) Rules() map[ratelimit.Class]ratelimit.Rule {
	return map[ratelimit.Class]ratelimit.Rule{
		ratelimit.ClassCheckout: {Limit: c.CheckoutLimit, Window: c.RateLimitWindow},
		ratelimit.ClassPortal:   {Limit: c.PortalLimit, Window: c.RateLimitWindow},
		ratelimit.ClassMutate:   {Limit: c.MutateLimit, Window: c.RateLimitWindow},
		ratelimit.ClassWebhook:  {Limit: c.WebhookLimit, Window: c.RateLimitWindow},
	}
}
