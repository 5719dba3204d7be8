package clientip

import "net/http"

// Middleware stores the resolved client address in the request context.
func Middleware(r *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := SetIPToContext(req.Context(), r.IP(req))
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

// FromRequest returns the address stored by Middleware. It fits ratelimit.KeyFunc.
func FromRequest(req *http.Request) string {
	return GetIPFromContext(req.Context())
}
