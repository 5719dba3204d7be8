package ratelimit

import (
	"context"
	"time"
)

// Class groups operations that share a budget.
type Class string

const (
	ClassCheckout Class = "checkout"
	ClassPortal   Class = "portal"
	ClassMutate   Class = "mutate"
	ClassWebhook  Class = "webhook"
)

// Rule is the budget of one class.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Guard holds one limiter per operation class over a shared store. It is an
// explicit value passed to handlers, so tests can build an isolated instance.
type Guard struct {
	limiters map[Class]Limiter
}

// NewGuard builds a sliding-window limiter for every rule.
func NewGuard(store Store, rules map[Class]Rule, opts ...SlidingWindowOption) (*Guard, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	g := &Guard{limiters: make(map[Class]Limiter, len(rules))}
	for class, rule := range rules {
		l, err := NewSlidingWindow(store, rule.Limit, rule.Window, opts...)
		if err != nil {
			return nil, err
		}
		g.limiters[class] = l
	}
	return g, nil
}

// Allow records one request of class for id.
func (g *Guard) Allow(ctx context.Context, class Class, id string) (*Result, error) {
	l, ok := g.limiters[class]
	if !ok {
		return nil, ErrUnknownClass
	}
	key := Key(class, id)
	if key == "" {
		return nil, ErrKeyRequired
	}
	return l.Allow(ctx, key)
}

// Limiter returns the limiter of class.
func (g *Guard) Limiter(class Class) (Limiter, bool) {
	l, ok := g.limiters[class]
	return l, ok
}
