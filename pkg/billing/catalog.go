package billing

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/billingsync/pkg/cache"
)

// CatalogEntry is a purchasable price with optional display data.
type CatalogEntry struct {
	PriceID     string `yaml:"price_id" json:"price_id"`
	Name        string `yaml:"name" json:"name,omitempty"`
	Description string `yaml:"description" json:"description,omitempty"`
}

type catalogFile struct {
	Prices []CatalogEntry `yaml:"prices"`
}

// LoadCatalogFile reads catalog entries from a YAML document of the form:
//
//	prices:
//	  - price_id: price_123
//	    name: Pro monthly
func LoadCatalogFile(path string) ([]CatalogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	for i, e := range f.Prices {
		if strings.TrimSpace(e.PriceID) == "" {
			return nil, fmt.Errorf("catalog entry %d: price_id is required", i)
		}
	}
	return f.Prices, nil
}

// Catalog is the immutable allow-list of purchasable prices backed by a short-lived
// cache of provider price lookups.
type Catalog struct {
	entries  map[string]CatalogEntry
	order    []string
	provider Provider
	prices   *cache.TTLCache[string, *Price]
}

// NewCatalog builds the allow-list from bare price ids and named entries.
// Returns an error when the resulting allow-list is empty.
func NewCatalog(provider Provider, priceIDs []string, entries []CatalogEntry, ttl time.Duration, size int) (*Catalog, error) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if size <= 0 {
		size = 256
	}
	c := &Catalog{
		entries:  make(map[string]CatalogEntry),
		provider: provider,
		prices:   cache.NewTTLCache[string, *Price](size, ttl),
	}
	add := func(e CatalogEntry) {
		e.PriceID = strings.TrimSpace(e.PriceID)
		if e.PriceID == "" {
			return
		}
		if _, ok := c.entries[e.PriceID]; !ok {
			c.order = append(c.order, e.PriceID)
		}
		if existing, ok := c.entries[e.PriceID]; ok && e.Name == "" {
			e = existing
		}
		c.entries[e.PriceID] = e
	}
	for _, id := range priceIDs {
		add(CatalogEntry{PriceID: id})
	}
	for _, e := range entries {
		add(e)
	}
	if len(c.order) == 0 {
		return nil, ErrEmptyAllowList
	}
	return c, nil
}

// Allowed reports whether priceID is purchasable.
func (c *Catalog) Allowed(priceID string) bool {
	_, ok := c.entries[priceID]
	return ok
}

// Entries returns the allow-list in configuration order.
func (c *Catalog) Entries() []CatalogEntry {
	out := make([]CatalogEntry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id])
	}
	return out
}

// Price validates priceID against the allow-list and returns the provider's view of it.
func (c *Catalog) Price(ctx context.Context, priceID string) (*Price, error) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return nil, validationError("price id is required")
	}
	if !c.Allowed(priceID) {
		return nil, validationError("unknown price id %q", priceID)
	}
	if p, ok := c.prices.Get(priceID); ok {
		return p, nil
	}

	p, err := c.provider.GetPrice(ctx, priceID)
	if err != nil {
		return nil, upstreamError(err, "could not load price")
	}
	if !p.Active {
		return nil, validationError("price %q is no longer available", priceID)
	}
	c.prices.Put(priceID, p)
	return p, nil
}
