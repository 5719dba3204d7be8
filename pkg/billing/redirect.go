package billing

import (
	"net/url"
	"strings"
)

// RedirectPolicy restricts caller-supplied redirect URLs to known application hosts.
type RedirectPolicy struct {
	hosts map[string]struct{}
}

// NewRedirectPolicy creates a policy allowing the given hosts. Entries may carry a port.
func NewRedirectPolicy(hosts []string) RedirectPolicy {
	p := RedirectPolicy{hosts: make(map[string]struct{}, len(hosts))}
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			p.hosts[h] = struct{}{}
		}
	}
	return p
}

// Resolve returns raw when it is an acceptable redirect target and fallback otherwise.
// Any parse or validation failure falls back silently.
func (p RedirectPolicy) Resolve(raw, fallback string) string {
	if p.Allowed(raw) {
		return raw
	}
	return fallback
}

// Allowed reports whether raw is an absolute URL on an allow-listed host.
// Plain http is accepted for loopback hosts only.
func (p RedirectPolicy) Allowed(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.User != nil || u.Host == "" || u.Opaque != "" {
		return false
	}

	hostname := strings.ToLower(u.Hostname())
	switch strings.ToLower(u.Scheme) {
	case "https":
	case "http":
		if !isLoopback(hostname) {
			return false
		}
	default:
		return false
	}

	if _, ok := p.hosts[strings.ToLower(u.Host)]; ok {
		return true
	}
	_, ok := p.hosts[hostname]
	return ok
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
