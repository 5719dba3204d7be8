package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrymomot/billingsync/pkg/billing"
	"github.com/dmitrymomot/billingsync/pkg/email/templates"
)

// Notifier turns billing lifecycle notifications into transactional emails.
type Notifier struct {
	sender       Sender
	productName  string
	supportEmail string
	manageURL    string
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithManageURL sets the link to the billing page shown in activation emails.
func WithManageURL(url string) NotifierOption {
	return func(n *Notifier) { n.manageURL = url }
}

// NewNotifier builds a billing.Notifier on top of sender.
func NewNotifier(sender Sender, cfg Config, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		sender:       sender,
		productName:  cfg.ProductName,
		supportEmail: cfg.SupportEmail,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NewSender picks Postmark when both tokens are set and the disk sender otherwise.
func NewSender(cfg Config) (Sender, error) {
	if cfg.PostmarkEnabled() {
		return NewPostmarkClient(cfg)
	}
	return NewDevSender(cfg.DevDir), nil
}

var _ billing.Notifier = (*Notifier)(nil)

// SubscriptionActivated emails the billing address on record.
func (n *Notifier) SubscriptionActivated(ctx context.Context, rec billing.Record) error {
	if rec.BillingEmail == "" {
		return ErrNoRecipient
	}
	data := templates.ActivatedData{
		ProductName:  n.productName,
		PlanLabel:    rec.BillingInterval,
		ManageURL:    n.manageURL,
		SupportEmail: n.supportEmail,
	}
	if rec.CurrentPeriodEnd != nil {
		data.RenewsOn = rec.CurrentPeriodEnd.Format("January 2, 2006")
	}

	body, err := templates.Render(ctx, templates.SubscriptionActivated(data))
	if err != nil {
		return fmt.Errorf("render activation email: %w", err)
	}
	return n.sender.SendEmail(ctx, SendEmailParams{
		SendTo:   rec.BillingEmail,
		Subject:  fmt.Sprintf("Your %s subscription is active", n.productName),
		BodyHTML: body,
		Tag:      "subscription-activated",
	})
}

// PaymentFailed emails the invoice address, falling back to the one on record.
func (n *Notifier) PaymentFailed(ctx context.Context, rec billing.Record, failure billing.PaymentFailed) error {
	to := failure.CustomerEmail
	if to == "" {
		to = rec.BillingEmail
	}
	if to == "" {
		return ErrNoRecipient
	}

	body, err := templates.Render(ctx, templates.PaymentFailed(templates.PaymentFailedData{
		ProductName:  n.productName,
		Amount:       FormatAmount(failure.AmountDue, failure.Currency),
		AttemptCount: failure.AttemptCount,
		InvoiceURL:   failure.HostedInvoiceURL,
		SupportEmail: n.supportEmail,
	}))
	if err != nil {
		return fmt.Errorf("render payment failed email: %w", err)
	}
	return n.sender.SendEmail(ctx, SendEmailParams{
		SendTo:   to,
		Subject:  fmt.Sprintf("Action needed: your %s payment failed", n.productName),
		BodyHTML: body,
		Tag:      "payment-failed",
	})
}

// zeroDecimal lists currencies whose minor unit equals the major unit.
var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// FormatAmount renders a minor-unit amount such as 1999 usd as "19.99 USD".
// It returns "" when the currency is unknown.
func FormatAmount(minor int64, currency string) string {
	if currency == "" {
		return ""
	}
	code := strings.ToUpper(currency)
	if zeroDecimal[strings.ToLower(currency)] {
		return fmt.Sprintf("%d %s", minor, code)
	}
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, code)
}
