// Package ratelimit implements sliding-window rate limiting keyed by
// operation class and caller identifier.
//
// A Guard owns one SlidingWindow per Class over a shared Store. MemoryStore
// keeps history in process and sweeps expired keys lazily; RedisStore keeps it
// in sorted sets so that every instance behind a load balancer shares the
// same budget.
//
//	guard, err := ratelimit.NewGuard(ratelimit.NewMemoryStore(), map[ratelimit.Class]ratelimit.Rule{
//		ratelimit.ClassCheckout: {Limit: 10, Window: time.Minute},
//		ratelimit.ClassWebhook:  {Limit: 600, Window: time.Minute},
//	})
//
//	r.With(ratelimit.Middleware(guard, ratelimit.ClassWebhook, clientip.GetIP)).Post("/webhook", h)
//
// Middleware fails open: when the store is unavailable the request proceeds.
package ratelimit
