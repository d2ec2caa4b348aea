package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStore defines persistence for local subscription records.
//
// UpsertByUser must be a single atomic insert-or-update keyed by the user's
// uniqueness constraint; concurrent callers for the same user must converge
// on one row. Update methods apply absolute field values so that duplicated
// or reordered webhook deliveries remain idempotent.
type SubscriptionStore interface {
	// FindActiveByUser returns the user's active subscription.
	// Returns ErrSubscriptionNotFound if none exists.
	FindActiveByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// FindOwnedByProviderSubscriptionID returns the record matching both the
	// provider subscription ID and the owning user. Returns
	// ErrSubscriptionNotFound when no such pair exists; callers treat that as
	// an ownership failure.
	FindOwnedByProviderSubscriptionID(ctx context.Context, providerSubID string, userID uuid.UUID) (*Subscription, error)

	// FindByProviderCustomerID returns the most recently updated record for a
	// provider customer. Used as the webhook fallback when the provider
	// subscription ID is not yet known locally.
	FindByProviderCustomerID(ctx context.Context, providerCustomerID string) (*Subscription, error)

	// UpsertByUser atomically inserts or replaces the user's subscription
	// record and reflects the stored row back into sub.
	UpsertByUser(ctx context.Context, sub *Subscription) error

	// UpdateByProviderSubscriptionID applies the non-nil fields of upd to the
	// record with the given provider subscription ID, bumping UpdatedAt.
	// Returns ErrSubscriptionNotFound when no row matches.
	UpdateByProviderSubscriptionID(ctx context.Context, providerSubID string, upd SubscriptionUpdate) error

	// Insert creates a new record. Returns ErrSubscriptionAlreadyExists when
	// the user already has an active subscription.
	Insert(ctx context.Context, sub *Subscription) error
}

// SubscriptionUpdate holds absolute replacement values for a stored record.
// Nil fields are left untouched.
type SubscriptionUpdate struct {
	PlanType               *PlanType
	Status                 *Status
	StartDate              *time.Time
	EndDate                *time.Time
	ProviderCustomerID     *string
	ProviderSubscriptionID *string
	ProviderPriceID        *string
}

// CustomerStore persists the provider customer ID linked to each user. The
// link is written once, before the first checkout session is created, so
// retried checkouts never create duplicate provider customers.
type CustomerStore interface {
	// GetProviderCustomerID returns the stored provider customer ID for the
	// user, or "" when the user has none yet.
	GetProviderCustomerID(ctx context.Context, userID uuid.UUID) (string, error)

	// SetProviderCustomerID stores the provider customer ID for the user.
	SetProviderCustomerID(ctx context.Context, userID uuid.UUID, providerCustomerID string) error
}
