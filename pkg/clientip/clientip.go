package clientip

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ErrInvalidProxy is returned for a trusted proxy entry that is neither an address nor a CIDR.
var ErrInvalidProxy = errors.New("clientip: invalid trusted proxy")

// Resolver extracts the client address from requests. Forwarding headers are only
// honored when the direct peer is a trusted proxy, so a client cannot pick its own
// rate-limit identity by sending X-Forwarded-For.
type Resolver struct {
	trusted []netip.Prefix
	headers []string
}

// NewResolver builds a Resolver from cfg.
func NewResolver(cfg Config) (*Resolver, error) {
	r := &Resolver{headers: cfg.Headers}
	for _, raw := range cfg.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidProxy, raw)
			}
			r.trusted = append(r.trusted, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProxy, raw)
		}
		addr = addr.Unmap()
		r.trusted = append(r.trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return r, nil
}

// IP returns the normalized client address, or "" if none can be determined.
func (r *Resolver) IP(req *http.Request) string {
	peer := remoteAddr(req.RemoteAddr)
	if !peer.IsValid() {
		return ""
	}
	if !r.isTrusted(peer) {
		return peer.String()
	}

	for _, h := range r.headers {
		value := req.Header.Get(h)
		if value == "" {
			continue
		}
		// X-Forwarded-For lists the original client first
		for part := range strings.SplitSeq(value, ",") {
			if addr, err := netip.ParseAddr(strings.TrimSpace(part)); err == nil {
				return addr.Unmap().String()
			}
		}
	}
	return peer.String()
}

func (r *Resolver) isTrusted(addr netip.Addr) bool {
	for _, p := range r.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteAddr(raw string) netip.Addr {
	host, _, err := net.SplitHostPort(raw)
	if err != nil {
		host = raw
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(host))
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}
