package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	sub "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig holds configuration for the Stripe billing provider.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
}

// StripeProvider implements Provider using the Stripe SDK. Hosted checkout
// and webhooks carry all payment complexity; this type only maps between
// Stripe objects and the normalized billing types.
type StripeProvider struct {
	cfg StripeConfig
}

// NewStripeProvider creates a Stripe billing provider. The secret key is set
// on the SDK's package-level client, so one provider instance per process.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}

	stripe.Key = cfg.SecretKey

	return &StripeProvider{cfg: cfg}, nil
}

// CreateCustomer creates a Stripe customer tagged with the local user ID.
func (p *StripeProvider) CreateCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata("user_id", userID.String())

	c, err := customer.New(params)
	if err != nil {
		return "", errors.Join(ErrProviderError, fmt.Errorf("create customer: %w", err))
	}
	return c.ID, nil
}

// GetCustomer retrieves a Stripe customer by ID.
func (p *StripeProvider) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	c, err := customer.Get(customerID, params)
	if err != nil {
		return nil, errors.Join(ErrProviderError, fmt.Errorf("get customer %s: %w", customerID, err))
	}
	return &Customer{
		ID:     c.ID,
		Email:  c.Email,
		UserID: c.Metadata["user_id"],
	}, nil
}

// CreateCheckoutSession creates a hosted checkout session in subscription mode.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*CheckoutSession, error) {
	if req.PriceID == "" {
		return nil, ErrMissingPriceID
	}

	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(req.CustomerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:               stripe.String(req.SuccessURL),
		CancelURL:                stripe.String(req.CancelURL),
		AllowPromotionCodes:      stripe.Bool(true),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired)),
	}
	params.Context = ctx
	params.AddMetadata("user_id", req.UserID.String())
	params.AddMetadata("plan_type", string(req.PlanType))
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	s, err := session.New(params)
	if err != nil {
		return nil, errors.Join(ErrProviderError, fmt.Errorf("create checkout session: %w", err))
	}
	if s.URL == "" {
		return nil, ErrNoCheckoutURL
	}
	return normalizeSession(s), nil
}

// GetCheckoutSession retrieves a checkout session with subscription and
// customer expanded, so the caller never has to trust client-supplied state.
func (p *StripeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("subscription")
	params.AddExpand("customer")

	s, err := session.Get(sessionID, params)
	if err != nil {
		return nil, errors.Join(ErrProviderError, fmt.Errorf("get checkout session %s: %w", sessionID, err))
	}
	return normalizeSession(s), nil
}

// GetSubscription retrieves a Stripe subscription by ID.
func (p *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	s, err := sub.Get(subscriptionID, params)
	if err != nil {
		return nil, errors.Join(ErrProviderError, fmt.Errorf("get subscription %s: %w", subscriptionID, err))
	}
	return normalizeSubscription(s), nil
}

// CancelAtPeriodEnd schedules the subscription to cancel when the current
// billing period ends.
func (p *StripeProvider) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx

	s, err := sub.Update(subscriptionID, params)
	if err != nil {
		return nil, errors.Join(ErrProviderError, fmt.Errorf("cancel subscription %s: %w", subscriptionID, err))
	}
	return normalizeSubscription(s), nil
}

// ParseWebhook verifies the Stripe-Signature header against the webhook
// secret and normalizes the event. The raw body must be passed exactly as
// received; any re-serialization breaks the signature.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}

	out := &Event{
		Type:          EventUnhandled,
		ProviderEvent: string(event.Type),
	}

	switch event.Type {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		var s stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("unmarshal subscription payload: %w", err)
		}
		out.Subscription = normalizeSubscription(&s)
		switch event.Type {
		case "customer.subscription.created":
			out.Type = EventSubscriptionCreated
		case "customer.subscription.updated":
			out.Type = EventSubscriptionUpdated
		case "customer.subscription.deleted":
			out.Type = EventSubscriptionDeleted
		}

	case "checkout.session.completed":
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("unmarshal checkout session payload: %w", err)
		}
		out.Type = EventCheckoutCompleted
		out.Session = normalizeSession(&s)

	case "invoice.payment_succeeded", "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("unmarshal invoice payload: %w", err)
		}
		if event.Type == "invoice.payment_succeeded" {
			out.Type = EventPaymentSucceeded
		} else {
			out.Type = EventPaymentFailed
		}
		out.InvoiceSubscriptionID = invoiceSubscriptionID(&inv)
	}

	return out, nil
}

func normalizeSession(s *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:               s.ID,
		URL:              s.URL,
		Paid:             s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		SubscriptionMode: s.Mode == stripe.CheckoutSessionModeSubscription,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Metadata != nil {
		out.UserID = s.Metadata["user_id"]
		out.PlanType = PlanType(s.Metadata["plan_type"])
	}
	if s.Subscription != nil {
		out.Subscription = normalizeSubscription(s.Subscription)
	}
	return out
}

func normalizeSubscription(s *stripe.Subscription) *ProviderSubscription {
	out := &ProviderSubscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	// Period boundaries live on the subscription item since the 2025-03-31
	// Stripe API version.
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		if item.CurrentPeriodStart > 0 {
			out.PeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		}
		if item.CurrentPeriodEnd > 0 {
			out.PeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
		if item.Price != nil {
			out.PriceID = item.Price.ID
			if item.Price.Recurring != nil {
				out.Interval = string(item.Price.Recurring.Interval)
			}
		}
	}
	if s.CancelAt > 0 {
		out.CancelAt = time.Unix(s.CancelAt, 0).UTC()
	}
	return out
}

// invoiceSubscriptionID extracts the subscription an invoice bills for, or ""
// for one-off invoices.
func invoiceSubscriptionID(inv *stripe.Invoice) string {
	if inv.Parent == nil || inv.Parent.SubscriptionDetails == nil {
		return ""
	}
	if inv.Parent.SubscriptionDetails.Subscription == nil {
		return ""
	}
	return inv.Parent.SubscriptionDetails.Subscription.ID
}
