package billing

import (
	"time"

	"github.com/google/uuid"

	bill "github.com/movesage/movesage/pkg/billing"
)

// SubscriptionResponse is the wire shape of a subscription record.
type SubscriptionResponse struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	PlanType       string    `json:"plan_type"`
	Status         string    `json:"status"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	PriceID        string    `json:"price_id,omitempty"`
}

func newSubscriptionResponse(sub *bill.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:             sub.ID,
		UserID:         sub.UserID,
		PlanType:       string(sub.PlanType),
		Status:         string(sub.Status),
		StartDate:      sub.StartDate,
		EndDate:        sub.EndDate,
		SubscriptionID: sub.ProviderSubscriptionID,
		PriceID:        sub.ProviderPriceID,
	}
}

// CheckoutSessionResponse carries the provider-hosted checkout URL the
// client redirects to.
type CheckoutSessionResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// CancelResponse reports a completed cancellation together with the time the
// subscription actually lapses.
type CancelResponse struct {
	Subscription SubscriptionResponse `json:"subscription"`
	CancelAt     time.Time            `json:"cancel_at"`
}
