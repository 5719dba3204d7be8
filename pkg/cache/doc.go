// Package cache provides a generic, thread-safe LRU cache with per-entry expiry.
//
// Entries are evicted when the cache exceeds its capacity (least recently used first)
// and are treated as missing once their TTL has elapsed. Expired entries are removed
// lazily by the next Get, so the cache never starts goroutines.
//
// # Usage
//
//	prices := cache.NewTTLCache[string, *billing.Price](256, 10*time.Minute)
//
//	if p, ok := prices.Get("price_123"); ok {
//		return p, nil
//	}
//	p, err := provider.GetPrice(ctx, "price_123")
//	if err != nil {
//		return nil, err
//	}
//	prices.Put("price_123", p)
//
// Operations are O(1). Tests can control expiry with WithClock.
package cache
