// Package clientip resolves the client network address of HTTP requests.
//
// Forwarding headers such as X-Forwarded-For are honored only when the direct
// peer belongs to one of the configured trusted proxies; otherwise the peer
// address is used. The resolved address is stored in the request context by
// Middleware and read back with FromRequest or GetIPFromContext.
package clientip
