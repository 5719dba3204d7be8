package clientip

// Config lists the proxies whose forwarding headers are trusted.
type Config struct {
	// TrustedProxies are CIDRs or single addresses of the load balancers in front of the service.
	TrustedProxies []string `env:"CLIENTIP_TRUSTED_PROXIES" envSeparator:","`
	// Headers are consulted in order when the peer is trusted.
	Headers []string `env:"CLIENTIP_HEADERS" envSeparator:"," envDefault:"CF-Connecting-IP,X-Forwarded-For,X-Real-IP"`
}
