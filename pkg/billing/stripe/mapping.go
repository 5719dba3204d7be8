package stripe

import (
	"time"

	stripego "github.com/stripe/stripe-go/v82"

	"github.com/dmitrymomot/billingsync/pkg/billing"
)

func mapPrice(pr *stripego.Price) *billing.Price {
	out := &billing.Price{
		ID:     pr.ID,
		Active: pr.Active,
	}
	if pr.Type == stripego.PriceTypeRecurring && pr.Recurring != nil {
		out.Recurring = true
		out.Interval = string(pr.Recurring.Interval)
		out.IntervalCount = pr.Recurring.IntervalCount
	}
	return out
}

// mapSubscription flattens a subscription into a snapshot. Only the first item is
// considered: one subscription carries exactly one plan.
func mapSubscription(sub *stripego.Subscription) *billing.Snapshot {
	snap := &billing.Snapshot{
		SubscriptionID:    sub.ID,
		Status:            billing.MapProviderStatus(string(sub.Status)),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CancelAt:          unixTime(sub.CancelAt),
		MetadataUserID:    sub.Metadata[metadataUserID],
	}
	if sub.Customer != nil {
		snap.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		snap.SubscriptionItemID = item.ID
		snap.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
		if item.Price != nil {
			snap.PriceID = item.Price.ID
			if item.Price.Recurring != nil {
				snap.BillingInterval = billing.IntervalLabel(
					string(item.Price.Recurring.Interval),
					item.Price.Recurring.IntervalCount,
				)
			}
		}
	}
	return snap
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
