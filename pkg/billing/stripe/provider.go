// Package stripe implements billing.Provider on top of the Stripe API.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/dmitrymomot/billingsync/pkg/billing"
)

const (
	metadataUserID  = "user_id"
	metadataPriceID = "price_id"
)

var (
	ErrMissingSecretKey     = errors.New("stripe secret key is required")
	ErrMissingWebhookSecret = errors.New("stripe webhook secret is required")
)

// Provider is the Stripe implementation of billing.Provider.
type Provider struct {
	api     *client.API
	cfg     Config
	timeout time.Duration
}

var _ billing.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithBackends replaces the HTTP backends, e.g. to point the client at stripe-mock.
func WithBackends(b *stripego.Backends) Option {
	return func(p *Provider) {
		if b != nil {
			p.api = client.New(p.cfg.SecretKey, b)
		}
	}
}

// New creates a Stripe provider.
func New(cfg Config, opts ...Option) (*Provider, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingSecretKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.WebhookTolerance <= 0 {
		cfg.WebhookTolerance = 5 * time.Minute
	}

	p := &Provider{
		api:     client.New(cfg.SecretKey, nil),
		cfg:     cfg,
		timeout: cfg.Timeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Provider) CreateCustomer(ctx context.Context, in billing.CustomerParams) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripego.CustomerParams{}
	params.Context = ctx
	if in.Email != "" {
		params.Email = stripego.String(in.Email)
	}
	if in.Name != "" {
		params.Name = stripego.String(in.Name)
	}
	params.AddMetadata(metadataUserID, in.UserID)
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	c, err := p.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create customer: %w", err)
	}
	return c.ID, nil
}

func (p *Provider) DeleteCustomer(ctx context.Context, customerID string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripego.CustomerParams{}
	params.Context = ctx
	if _, err := p.api.Customers.Del(customerID, params); err != nil {
		return fmt.Errorf("stripe: delete customer %s: %w", customerID, err)
	}
	return nil
}

func (p *Provider) GetPrice(ctx context.Context, priceID string) (*billing.Price, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripego.PriceParams{}
	params.Context = ctx
	pr, err := p.api.Prices.Get(priceID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: get price %s: %w", priceID, err)
	}
	return mapPrice(pr), nil
}

func (p *Provider) CreateCheckoutSession(ctx context.Context, in billing.CheckoutParams) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripego.CheckoutSessionParams{
		Customer: stripego.String(in.CustomerID),
		Mode:     stripego.String(string(in.Mode)),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{
				Price:    stripego.String(in.PriceID),
				Quantity: stripego.Int64(1),
			},
		},
		SuccessURL:        stripego.String(in.SuccessURL),
		CancelURL:         stripego.String(in.CancelURL),
		ClientReferenceID: stripego.String(in.UserID),
	}
	params.Context = ctx
	params.AddMetadata(metadataUserID, in.UserID)
	params.AddMetadata(metadataPriceID, in.PriceID)
	if in.Mode == billing.CheckoutModeSubscription {
		params.SubscriptionData = &stripego.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{metadataUserID: in.UserID},
		}
	}

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (p *Provider) CreatePortalSession(ctx context.Context, in billing.PortalParams) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripego.BillingPortalSessionParams{
		Customer:  stripego.String(in.CustomerID),
		ReturnURL: stripego.String(in.ReturnURL),
	}
	params.Context = ctx

	sess, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create portal session: %w", err)
	}
	return sess.URL, nil
}

func (p *Provider) GetSubscription(ctx context.Context, subscriptionID string) (*billing.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripego.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("items.data.price")

	sub, err := p.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: get subscription %s: %w", subscriptionID, err)
	}
	return mapSubscription(sub), nil
}

func (p *Provider) UpdateSubscriptionPrice(ctx context.Context, in billing.SwitchParams) (*billing.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripego.SubscriptionParams{
		Items: []*stripego.SubscriptionItemsParams{
			{
				ID:    stripego.String(in.SubscriptionItemID),
				Price: stripego.String(in.PriceID),
			},
		},
		ProrationBehavior: stripego.String("create_prorations"),
	}
	params.Context = ctx
	params.AddExpand("items.data.price")

	sub, err := p.api.Subscriptions.Update(in.SubscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: update subscription %s: %w", in.SubscriptionID, err)
	}
	return mapSubscription(sub), nil
}

func (p *Provider) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancelAtPeriodEnd bool) (*billing.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripego.SubscriptionParams{
		CancelAtPeriodEnd: stripego.Bool(cancelAtPeriodEnd),
	}
	params.Context = ctx
	params.AddExpand("items.data.price")

	sub, err := p.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: update subscription %s: %w", subscriptionID, err)
	}
	return mapSubscription(sub), nil
}
