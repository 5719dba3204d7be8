// Package email delivers billing lifecycle emails.
//
// Sender abstracts delivery: the Postmark client is used in production and
// DevSender writes messages to disk locally. Notifier implements
// billing.Notifier, rendering the templ components in the templates package:
//
//	sender, err := email.NewSender(cfg)
//	if err != nil {
//		return err
//	}
//	notifier := email.NewNotifier(sender, cfg, email.WithManageURL(portalReturnURL))
//	svc := billing.NewService(..., billing.WithNotifier(notifier))
//
// Notifications run detached from webhook handling; send failures are logged by
// the caller and never change billing state.
package email
