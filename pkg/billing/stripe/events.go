package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmitrymomot/billingsync/pkg/billing"
)

// ParseEvent verifies the Stripe-Signature header and decodes the event into one of
// the payload shapes the reconciler understands.
func (p *Provider) ParseEvent(payload []byte, signature string) (*billing.Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.cfg.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                p.cfg.WebhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, fmt.Errorf("%w: %w", billing.ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %w", billing.ErrMalformedEvent, err)
	}
	if ev.ID == "" || ev.Data == nil {
		return nil, fmt.Errorf("%w: missing event id or data", billing.ErrMalformedEvent)
	}

	out := &billing.Event{
		ID:        ev.ID,
		Type:      string(ev.Type),
		CreatedAt: time.Unix(ev.Created, 0).UTC(),
	}
	out.Payload, err = decodePayload(string(ev.Type), ev.Data.Raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", billing.ErrMalformedEvent, ev.Type, err)
	}
	return out, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func decodePayload(eventType string, raw json.RawMessage) (billing.EventPayload, error) {
	switch eventType {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted",
		"customer.subscription.paused",
		"customer.subscription.resumed":
		var sub stripego.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, err
		}
		if sub.ID == "" {
			return nil, errors.New("subscription id is empty")
		}
		return billing.SubscriptionChanged{Snapshot: *mapSubscription(&sub)}, nil

	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var sess stripego.CheckoutSession
		if err := json.Unmarshal(raw, &sess); err != nil {
			return nil, err
		}
		return mapCheckoutSession(&sess), nil

	case "invoice.paid":
		inv, err := decodeInvoice(raw)
		if err != nil {
			return nil, err
		}
		return billing.InvoicePaid{
			InvoiceID:      inv.ID,
			CustomerID:     inv.Customer,
			SubscriptionID: inv.subscriptionID(),
		}, nil

	case "invoice.payment_failed":
		inv, err := decodeInvoice(raw)
		if err != nil {
			return nil, err
		}
		return billing.PaymentFailed{
			InvoiceID:        inv.ID,
			CustomerID:       inv.Customer,
			SubscriptionID:   inv.subscriptionID(),
			CustomerEmail:    inv.CustomerEmail,
			AmountDue:        inv.AmountDue,
			Currency:         inv.Currency,
			HostedInvoiceURL: inv.HostedInvoiceURL,
			AttemptCount:     inv.AttemptCount,
		}, nil

	default:
		return billing.Unhandled{}, nil
	}
}

func mapCheckoutSession(sess *stripego.CheckoutSession) billing.CheckoutCompleted {
	out := billing.CheckoutCompleted{
		SessionID: sess.ID,
		Mode:      billing.CheckoutMode(sess.Mode),
		PriceID:   sess.Metadata[metadataPriceID],
		UserRef:   sess.Metadata[metadataUserID],
		Paid: sess.PaymentStatus == stripego.CheckoutSessionPaymentStatusPaid ||
			sess.PaymentStatus == stripego.CheckoutSessionPaymentStatusNoPaymentRequired,
		CustomerEmail: sess.CustomerEmail,
	}
	if out.UserRef == "" {
		out.UserRef = sess.ClientReferenceID
	}
	if sess.Customer != nil {
		out.CustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		out.SubscriptionID = sess.Subscription.ID
	}
	if out.CustomerEmail == "" && sess.CustomerDetails != nil {
		out.CustomerEmail = sess.CustomerDetails.Email
	}
	return out
}

// invoice is decoded locally: the subscription reference moved under parent in
// recent API versions and older payloads still carry it at the top level.
type invoice struct {
	ID               string `json:"id"`
	Customer         string `json:"customer"`
	CustomerEmail    string `json:"customer_email"`
	AmountDue        int64  `json:"amount_due"`
	Currency         string `json:"currency"`
	HostedInvoiceURL string `json:"hosted_invoice_url"`
	AttemptCount     int64  `json:"attempt_count"`
	Subscription     string `json:"subscription"`
	Parent           *struct {
		SubscriptionDetails *struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (inv *invoice) subscriptionID() string {
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != "" {
		return inv.Parent.SubscriptionDetails.Subscription
	}
	return inv.Subscription
}

func decodeInvoice(raw json.RawMessage) (*invoice, error) {
	var inv invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, err
	}
	if inv.ID == "" {
		return nil, errors.New("invoice id is empty")
	}
	return &inv, nil
}
