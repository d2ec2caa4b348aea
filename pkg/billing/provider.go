package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Provider defines the payment provider operations consumed by the billing
// service. Implementations wrap the provider SDK and normalize its objects;
// the service never touches provider types directly, which keeps state
// transitions testable with mocks.
type Provider interface {
	// CreateCustomer creates a provider customer tagged with the local user
	// ID in its metadata and returns the provider customer ID.
	CreateCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error)

	// GetCustomer retrieves a provider customer by ID.
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)

	// CreateCheckoutSession creates a hosted checkout session in subscription
	// mode for the given customer and price.
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*CheckoutSession, error)

	// GetCheckoutSession retrieves a checkout session by ID with its
	// subscription and customer objects expanded.
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)

	// GetSubscription retrieves a provider subscription by ID.
	GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)

	// CancelAtPeriodEnd schedules the subscription to cancel at the end of
	// the current billing period and returns the updated subscription.
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)

	// ParseWebhook verifies the signature of a raw webhook payload against
	// the shared secret and returns the normalized event. Verification
	// failures are reported with ErrWebhookVerificationFailed; no payload
	// content is trusted before verification succeeds.
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

// SessionRequest contains the data needed to create a checkout session.
type SessionRequest struct {
	CustomerID string
	PriceID    string
	UserID     uuid.UUID
	PlanType   PlanType
	SuccessURL string
	CancelURL  string

	// IdempotencyKey makes retried creation calls safe; the provider returns
	// the existing session instead of creating a duplicate.
	IdempotencyKey string
}

// CheckoutSession is a normalized view of a provider checkout session.
type CheckoutSession struct {
	ID               string
	URL              string
	Paid             bool
	SubscriptionMode bool
	CustomerID       string

	// UserID and PlanType come from the session metadata written at creation
	// time. Metadata is the only trusted channel for correlating an opaque
	// session back to a local user.
	UserID   string
	PlanType PlanType

	// Subscription is populated when the session was retrieved with the
	// subscription expanded; webhook payloads may carry only its ID.
	Subscription *ProviderSubscription
}

// ProviderSubscription is a normalized view of a provider subscription.
type ProviderSubscription struct {
	ID          string
	CustomerID  string
	Status      string // raw provider status, translated via MapProviderStatus
	PriceID     string
	Interval    string // price billing interval: "month" or "year"
	PeriodStart time.Time
	PeriodEnd   time.Time

	CancelAtPeriodEnd bool
	CancelAt          time.Time // zero unless a cancellation is scheduled
}

// Customer is a normalized view of a provider customer.
type Customer struct {
	ID     string
	Email  string
	UserID string // local user ID from the customer metadata, "" if untagged
}

// EventType is the normalized webhook event type.
type EventType string

const (
	EventCheckoutCompleted   EventType = "checkout_completed"
	EventSubscriptionCreated EventType = "subscription_created"
	EventSubscriptionUpdated EventType = "subscription_updated"
	EventSubscriptionDeleted EventType = "subscription_deleted"
	EventPaymentSucceeded    EventType = "payment_succeeded"
	EventPaymentFailed       EventType = "payment_failed"
	EventUnhandled           EventType = "unhandled"
)

// Event is a verified, normalized webhook notification.
type Event struct {
	Type          EventType
	ProviderEvent string // original provider event name, for logging

	// Subscription carries the payload of subscription.* events.
	Subscription *ProviderSubscription

	// Session carries the payload of checkout completion events.
	Session *CheckoutSession

	// InvoiceSubscriptionID is the subscription an invoice event belongs to;
	// empty when the invoice has none, in which case the event is skipped.
	InvoiceSubscriptionID string
}
