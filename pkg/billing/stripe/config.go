package stripe

import "time"

// Config holds the Stripe credentials and call limits.
type Config struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`

	// Timeout bounds every API call.
	Timeout time.Duration `env:"BILLING_PROVIDER_TIMEOUT" envDefault:"10s"`
	// WebhookTolerance is the maximum accepted age of a signed webhook timestamp.
	WebhookTolerance time.Duration `env:"STRIPE_WEBHOOK_TOLERANCE" envDefault:"5m"`
}
