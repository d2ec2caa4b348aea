package billing

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is the local mirror of a user's billing state. The payment
// provider remains the source of truth; this record is reconciled from
// checkout verification and webhook deliveries.
//
// At most one record per user may be active at a time; stores enforce this
// with a uniqueness constraint on UserID, not on ID.
type Subscription struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	PlanType  PlanType
	Status    Status
	StartDate time.Time
	EndDate   time.Time // authoritative "access until" timestamp
	CreatedAt time.Time
	UpdatedAt time.Time

	// Provider-side foreign keys. ProviderSubscriptionID is empty for
	// locally originated free subscriptions.
	ProviderCustomerID     string
	ProviderSubscriptionID string
	ProviderPriceID        string
}

// IsActive reports whether the subscription currently grants access.
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// IsFree reports whether the subscription is a locally originated free tier.
func (s *Subscription) IsFree() bool {
	return s.PlanType == PlanFree
}

// HasLapsedAt reports whether the billing period has ended at the given time.
// Useful for testing with fixed time values.
func (s *Subscription) HasLapsedAt(now time.Time) bool {
	if s.EndDate.IsZero() {
		return false
	}
	return now.After(s.EndDate)
}

// HasLapsed reports whether the billing period has ended.
func (s *Subscription) HasLapsed() bool {
	return s.HasLapsedAt(time.Now().UTC())
}
