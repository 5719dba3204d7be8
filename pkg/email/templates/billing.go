package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// ActivatedData fills the subscription-activated email.
type ActivatedData struct {
	ProductName  string
	PlanLabel    string
	RenewsOn     string
	ManageURL    string
	SupportEmail string
}

// PaymentFailedData fills the payment-failed email.
type PaymentFailedData struct {
	ProductName  string
	Amount       string
	AttemptCount int64
	InvoiceURL   string
	SupportEmail string
}

// SubscriptionActivated is sent once a subscription first becomes active.
func SubscriptionActivated(d ActivatedData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return writeAll(w,
			layoutOpen(d.ProductName),
			"<h1>Your subscription is active</h1>",
			"<p>Thanks for subscribing to ", templ.EscapeString(d.ProductName), ".</p>",
			optional(d.PlanLabel != "", "<p>Plan: <strong>"+templ.EscapeString(d.PlanLabel)+"</strong></p>"),
			optional(d.RenewsOn != "", "<p>Next renewal: "+templ.EscapeString(d.RenewsOn)+"</p>"),
			optional(d.ManageURL != "", button(d.ManageURL, "Manage billing")),
			layoutClose(d.SupportEmail),
		)
	})
}

// PaymentFailed asks the customer to update their payment method.
func PaymentFailed(d PaymentFailedData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return writeAll(w,
			layoutOpen(d.ProductName),
			"<h1>We could not process your payment</h1>",
			"<p>A charge",
			optional(d.Amount != "", " of <strong>"+templ.EscapeString(d.Amount)+"</strong>"),
			" for your ", templ.EscapeString(d.ProductName), " subscription failed.</p>",
			optional(d.AttemptCount > 1, "<p>We will retry automatically, but please update your payment method to avoid interruption.</p>"),
			optional(d.InvoiceURL != "", button(d.InvoiceURL, "Pay invoice")),
			layoutClose(d.SupportEmail),
		)
	})
}

func layoutOpen(title string) string {
	return `<!DOCTYPE html><html><head><meta charset="utf-8"><title>` + templ.EscapeString(title) +
		`</title></head><body style="font-family:sans-serif;max-width:560px;margin:0 auto;">`
}

func layoutClose(support string) string {
	if support == "" {
		return "</body></html>"
	}
	return `<p style="color:#666;font-size:12px;">Questions? Reply to this email or write to ` +
		templ.EscapeString(support) + `.</p></body></html>`
}

// button sanitizes href: non-http(s) URLs render as an inert link.
func button(href, label string) string {
	return `<p><a href="` + templ.EscapeString(string(templ.URL(href))) +
		`" style="display:inline-block;padding:10px 16px;background:#111;color:#fff;text-decoration:none;">` +
		templ.EscapeString(label) + `</a></p>`
}

func optional(cond bool, s string) string {
	if !cond {
		return ""
	}
	return s
}

func writeAll(w io.Writer, parts ...string) error {
	for _, p := range parts {
		if p == "" {
			continue
		}
		if _, err := io.WriteString(w, p); err != nil {
			return err
		}
	}
	return nil
}
