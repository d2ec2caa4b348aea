package billing

import (
	"github.com/google/uuid"
)

// PlanType represents the billing tier a user subscribes to.
// Free plans are locally originated and have no provider counterpart.
type PlanType string

const (
	PlanFree    PlanType = "free"
	PlanMonthly PlanType = "monthly"
	PlanAnnual  PlanType = "annual"
)

// IsPaid reports whether the plan bills through the payment provider.
func (p PlanType) IsPaid() bool {
	return p == PlanMonthly || p == PlanAnnual
}

// Valid reports whether the plan type is one of the known tiers.
func (p PlanType) Valid() bool {
	switch p {
	case PlanFree, PlanMonthly, PlanAnnual:
		return true
	}
	return false
}

// Status represents the local subscription state. It is always derived from
// provider data or explicit user actions, never set from untrusted input.
type Status string

const (
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
	StatusPastDue  Status = "past_due"
)

// Identity is the verified caller identity threaded explicitly into every
// service call. It is produced by the auth layer from a bearer token; the
// billing core never reads it from ambient context.
type Identity struct {
	UserID uuid.UUID
	Email  string
}

// CheckoutRequest carries the caller-supplied inputs for creating a new
// checkout session.
type CheckoutRequest struct {
	PlanType   PlanType
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// ChangeRequest carries the inputs for upgrading an existing subscription.
type ChangeRequest struct {
	ProviderSubscriptionID string
	NewPriceID             string
	SuccessURL             string
	CancelURL              string
}
