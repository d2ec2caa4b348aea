package billing

import "errors"

var (
	ErrSubscriptionNotFound      = errors.New("subscription not found")
	ErrSubscriptionAlreadyExists = errors.New("subscription already exists")
	ErrNotSubscriptionOwner      = errors.New("subscription does not belong to user")

	ErrInvalidPlanType     = errors.New("invalid plan type")
	ErrMissingPriceID      = errors.New("price ID is required")
	ErrMissingSessionID    = errors.New("checkout session ID is required")
	ErrMissingSubscription = errors.New("subscription ID is required")

	ErrSessionUserMismatch        = errors.New("checkout session does not belong to user")
	ErrPaymentNotCompleted        = errors.New("checkout session payment not completed")
	ErrSessionWithoutSubscription = errors.New("checkout session carries no subscription")

	ErrAlreadyOnHighestPlan = errors.New("already on the highest plan")
	ErrCheckoutRequired     = errors.New("plan change requires a new checkout")

	ErrWebhookVerificationFailed = errors.New("webhook signature verification failed")
	ErrProviderError             = errors.New("payment provider error")
	ErrNoCheckoutURL             = errors.New("no checkout URL returned from provider")
)
