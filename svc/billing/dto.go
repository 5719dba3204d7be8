package billing

import (
	"time"

	core "github.com/dmitrymomot/billingsync/pkg/billing"
)

type checkoutRequest struct {
	PriceID    string `json:"priceId"`
	SuccessURL string `json:"successUrl,omitempty"`
	CancelURL  string `json:"cancelUrl,omitempty"`
}

type portalRequest struct {
	ReturnURL string `json:"returnUrl,omitempty"`
}

type switchRequest struct {
	NewPriceID string `json:"newPriceId"`
}

type sessionResponse struct {
	SessionURL string `json:"sessionUrl"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type cancelResponse struct {
	OK          bool      `json:"ok"`
	EffectiveAt time.Time `json:"effectiveAt"`
}

type webhookResponse struct {
	Received bool         `json:"received"`
	Status   core.Outcome `json:"status"`
}

type pricesResponse struct {
	Prices []core.CatalogEntry `json:"prices"`
}

// recordResponse is the public view of a record. Provider ids stay server side.
type recordResponse struct {
	Status            core.Status `json:"status"`
	Entitled          bool        `json:"entitled"`
	PriceID           string      `json:"price_id"`
	BillingInterval   string      `json:"billing_interval"`
	CancelAtPeriodEnd bool        `json:"cancel_at_period_end"`
	CancelAt          *time.Time  `json:"cancel_at"`
	CurrentPeriodEnd  *time.Time  `json:"current_period_end"`
	HasBillingAccount bool        `json:"has_billing_account"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

func newRecordResponse(rec *core.Record) *recordResponse {
	if rec == nil {
		return nil
	}
	return &recordResponse{
		Status:            rec.Status,
		Entitled:          rec.Status.IsEntitled(),
		PriceID:           rec.PriceID,
		BillingInterval:   rec.BillingInterval,
		CancelAtPeriodEnd: rec.CancelAtPeriodEnd,
		CancelAt:          rec.CancelAt,
		CurrentPeriodEnd:  rec.CurrentPeriodEnd,
		HasBillingAccount: rec.ProviderCustomerID != "",
		UpdatedAt:         rec.UpdatedAt,
	}
}
