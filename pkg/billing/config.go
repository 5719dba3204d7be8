package billing

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds the provider-agnostic billing settings.
type Config struct {
	// PriceIDs is the allow-list of purchasable prices.
	PriceIDs []string `env:"BILLING_PRICE_IDS" envSeparator:","`
	// CatalogFile optionally adds named price entries from a YAML file.
	CatalogFile string `env:"BILLING_CATALOG_FILE"`

	RedirectHosts     []string `env:"BILLING_REDIRECT_HOSTS" envSeparator:","`
	DefaultReturnURL  string   `env:"BILLING_DEFAULT_RETURN_URL,required"`
	DefaultSuccessURL string   `env:"BILLING_DEFAULT_SUCCESS_URL,required"`
	DefaultCancelURL  string   `env:"BILLING_DEFAULT_CANCEL_URL,required"`

	PriceCacheTTL  time.Duration `env:"BILLING_PRICE_CACHE_TTL" envDefault:"10m"`
	PriceCacheSize int           `env:"BILLING_PRICE_CACHE_SIZE" envDefault:"256"`

	// NotificationTimeout bounds each fire-and-forget notification.
	NotificationTimeout time.Duration `env:"BILLING_NOTIFICATION_TIMEOUT" envDefault:"15s"`
}

// Validate checks that some price is purchasable and that the fallback redirect
// URLs are absolute.
func (c Config) Validate() error {
	if len(c.PriceIDs) == 0 && c.CatalogFile == "" {
		return ErrEmptyAllowList
	}
	for name, raw := range map[string]string{
		"BILLING_DEFAULT_RETURN_URL":  c.DefaultReturnURL,
		"BILLING_DEFAULT_SUCCESS_URL": c.DefaultSuccessURL,
		"BILLING_DEFAULT_CANCEL_URL":  c.DefaultCancelURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
			return fmt.Errorf("%s must be an absolute http(s) url", name)
		}
	}
	return nil
}
