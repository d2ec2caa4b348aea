package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// freeTrialDays is the locally granted trial period for the free tier.
const freeTrialDays = 14

// Service defines the public interface for subscription state management.
// Every operation takes the verified caller identity explicitly; nothing is
// read from ambient context, which keeps authorization checks testable in
// isolation.
type Service interface {
	// CreateCheckoutSession creates a provider checkout session for the user
	// and returns it so the caller can redirect to its URL.
	CreateCheckoutSession(ctx context.Context, id Identity, req CheckoutRequest) (*CheckoutSession, error)

	// VerifyCheckoutSession re-derives the checkout outcome from the
	// provider and idempotently materializes the local subscription record.
	// sessionID arrives via a redirect query parameter and is untrusted.
	VerifyCheckoutSession(ctx context.Context, id Identity, sessionID string) (*Subscription, error)

	// HandleWebhook verifies and applies an asynchronous provider event.
	// A store failure surfaces as an error so the HTTP layer responds 5xx
	// and the provider redelivers.
	HandleWebhook(ctx context.Context, payload []byte, signature string) error

	// CancelSubscription cancels the user's subscription: free tiers
	// locally, paid tiers at the provider first and locally on success.
	CancelSubscription(ctx context.Context, id Identity, providerSubID string) (*CancelResult, error)

	// ChangeSubscription starts an upgrade. Returns ErrAlreadyOnHighestPlan
	// for annual plans and ErrCheckoutRequired for free plans; monthly plans
	// get a new checkout session that is reconciled later through the
	// verifier or webhook path.
	ChangeSubscription(ctx context.Context, id Identity, req ChangeRequest) (*CheckoutSession, error)

	// StartFreeTrial inserts a locally originated free subscription.
	StartFreeTrial(ctx context.Context, id Identity) (*Subscription, error)

	// ActiveSubscription returns the user's active subscription record.
	ActiveSubscription(ctx context.Context, id Identity) (*Subscription, error)
}

// CancelResult reports a completed cancellation. CancelAt is the provider's
// effective cancellation time; for free tiers it is the local EndDate.
type CancelResult struct {
	Subscription *Subscription
	CancelAt     time.Time
}

// IdempotencyKeyFunc derives the natural idempotency key passed to the
// provider's session-creation call.
type IdempotencyKeyFunc func(userID uuid.UUID, priceID string, now time.Time) string

type service struct {
	store     SubscriptionStore
	customers CustomerStore
	provider  Provider
	log       *slog.Logger
	now       func() time.Time
	idemKey   IdempotencyKeyFunc
}

// NewService creates a billing Service. Panics if required dependencies are
// nil to fail fast during initialization.
func NewService(store SubscriptionStore, customers CustomerStore, provider Provider, opts ...ServiceOption) Service {
	if store == nil {
		panic("billing: SubscriptionStore is required")
	}
	if customers == nil {
		panic("billing: CustomerStore is required")
	}
	if provider == nil {
		panic("billing: Provider is required")
	}

	s := &service{
		store:     store,
		customers: customers,
		provider:  provider,
		log:       slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
		idemKey:   defaultIdempotencyKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// defaultIdempotencyKey buckets retried creation calls within the same hour
// onto one provider session.
func defaultIdempotencyKey(userID uuid.UUID, priceID string, now time.Time) string {
	bucket := now.Truncate(time.Hour).Unix()
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d", userID, priceID, bucket))
	return hex.EncodeToString(sum[:])
}

func (s *service) CreateCheckoutSession(ctx context.Context, id Identity, req CheckoutRequest) (*CheckoutSession, error) {
	if req.PriceID == "" {
		return nil, ErrMissingPriceID
	}
	if !req.PlanType.IsPaid() {
		return nil, ErrInvalidPlanType
	}

	customerID, err := s.ensureCustomer(ctx, id)
	if err != nil {
		return nil, err
	}

	sess, err := s.provider.CreateCheckoutSession(ctx, SessionRequest{
		CustomerID:     customerID,
		PriceID:        req.PriceID,
		UserID:         id.UserID,
		PlanType:       req.PlanType,
		SuccessURL:     withSessionPlaceholder(req.SuccessURL),
		CancelURL:      req.CancelURL,
		IdempotencyKey: s.idemKey(id.UserID, req.PriceID, s.now()),
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "checkout session created",
		slog.String("user_id", id.UserID.String()),
		slog.String("plan_type", string(req.PlanType)),
		slog.String("session_id", sess.ID))
	return sess, nil
}

// ensureCustomer resolves the provider customer for a user, creating and
// persisting one on first use. The customer ID is stored before any session
// is created so a failed checkout attempt never leads to duplicate provider
// customers on retry.
func (s *service) ensureCustomer(ctx context.Context, id Identity) (string, error) {
	customerID, err := s.customers.GetProviderCustomerID(ctx, id.UserID)
	if err != nil {
		return "", fmt.Errorf("look up provider customer: %w", err)
	}
	if customerID != "" {
		return customerID, nil
	}

	customerID, err = s.provider.CreateCustomer(ctx, id.UserID, id.Email)
	if err != nil {
		return "", err
	}
	if err := s.customers.SetProviderCustomerID(ctx, id.UserID, customerID); err != nil {
		return "", fmt.Errorf("persist provider customer: %w", err)
	}

	s.log.InfoContext(ctx, "provider customer created",
		slog.String("user_id", id.UserID.String()),
		slog.String("customer_id", customerID))
	return customerID, nil
}

// withSessionPlaceholder appends the provider's session-ID template so the
// success redirect carries the opaque session identifier back to the verifier.
func withSessionPlaceholder(successURL string) string {
	if successURL == "" || strings.Contains(successURL, "session_id=") {
		return successURL
	}
	sep := "?"
	if strings.Contains(successURL, "?") {
		sep = "&"
	}
	return successURL + sep + "session_id={CHECKOUT_SESSION_ID}"
}

func (s *service) VerifyCheckoutSession(ctx context.Context, id Identity, sessionID string) (*Subscription, error) {
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}

	sess, err := s.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// The session metadata, written server-side at creation, is the only
	// trusted link between the opaque session and a local user. A mismatch
	// means a guessed or replayed session ID.
	if sess.UserID != id.UserID.String() {
		return nil, ErrSessionUserMismatch
	}
	if !sess.Paid {
		return nil, ErrPaymentNotCompleted
	}

	ps := sess.Subscription
	if ps != nil && ps.ID != "" && ps.PeriodEnd.IsZero() {
		ps, err = s.provider.GetSubscription(ctx, ps.ID)
		if err != nil {
			return nil, err
		}
	}
	if ps == nil || ps.ID == "" {
		return nil, ErrSessionWithoutSubscription
	}

	planType := sess.PlanType
	if !planType.IsPaid() {
		planType = PlanFromInterval(ps.Interval)
	}

	rec := &Subscription{
		UserID:                 id.UserID,
		PlanType:               planType,
		Status:                 MapProviderStatus(ps.Status),
		StartDate:              ps.PeriodStart,
		EndDate:                ps.PeriodEnd,
		ProviderCustomerID:     sess.CustomerID,
		ProviderSubscriptionID: ps.ID,
		ProviderPriceID:        ps.PriceID,
	}
	if err := s.store.UpsertByUser(ctx, rec); err != nil {
		return nil, fmt.Errorf("materialize subscription: %w", err)
	}

	s.log.InfoContext(ctx, "checkout session verified",
		slog.String("user_id", id.UserID.String()),
		slog.String("session_id", sessionID),
		slog.String("subscription_id", ps.ID))
	return rec, nil
}

func (s *service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}

	switch event.Type {
	case EventSubscriptionCreated:
		return s.applySubscriptionCreated(ctx, event.Subscription, "")

	case EventCheckoutCompleted:
		sess := event.Session
		if sess == nil || !sess.SubscriptionMode || sess.Subscription == nil || sess.Subscription.ID == "" {
			return nil
		}
		return s.applySubscriptionCreated(ctx, sess.Subscription, sess.UserID)

	case EventSubscriptionUpdated:
		return s.applySubscriptionUpdated(ctx, event.Subscription)

	case EventSubscriptionDeleted:
		if event.Subscription == nil {
			return nil
		}
		return s.applyStatus(ctx, event.Subscription.ID, StatusCanceled, nil)

	case EventPaymentSucceeded:
		if event.InvoiceSubscriptionID == "" {
			return nil
		}
		// Re-read the subscription so the extended period end comes from the
		// provider, not from the stale invoice snapshot.
		ps, err := s.provider.GetSubscription(ctx, event.InvoiceSubscriptionID)
		if err != nil {
			return err
		}
		return s.applyStatus(ctx, event.InvoiceSubscriptionID, StatusActive, &ps.PeriodEnd)

	case EventPaymentFailed:
		if event.InvoiceSubscriptionID == "" {
			return nil
		}
		return s.applyStatus(ctx, event.InvoiceSubscriptionID, StatusPastDue, nil)

	default:
		s.log.InfoContext(ctx, "unhandled webhook event",
			slog.String("event_type", event.ProviderEvent))
		return nil
	}
}

// applySubscriptionCreated materializes a subscription from a provider
// payload. The owning user comes from session metadata when available and
// from the provider customer's metadata otherwise.
func (s *service) applySubscriptionCreated(ctx context.Context, ps *ProviderSubscription, sessionUserID string) error {
	if ps == nil || ps.ID == "" {
		return nil
	}

	var err error
	if ps.PeriodEnd.IsZero() {
		ps, err = s.provider.GetSubscription(ctx, ps.ID)
		if err != nil {
			return err
		}
	}

	rawUserID := sessionUserID
	if rawUserID == "" && ps.CustomerID != "" {
		c, err := s.provider.GetCustomer(ctx, ps.CustomerID)
		if err != nil {
			return err
		}
		rawUserID = c.UserID
	}
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		// An untagged customer cannot be correlated to a local user; retrying
		// the delivery will not change that, so acknowledge and move on.
		s.log.WarnContext(ctx, "subscription event without resolvable user",
			slog.String("subscription_id", ps.ID),
			slog.String("customer_id", ps.CustomerID))
		return nil
	}

	rec := &Subscription{
		UserID:                 userID,
		PlanType:               PlanFromInterval(ps.Interval),
		Status:                 MapProviderStatus(ps.Status),
		StartDate:              ps.PeriodStart,
		EndDate:                ps.PeriodEnd,
		ProviderCustomerID:     ps.CustomerID,
		ProviderSubscriptionID: ps.ID,
		ProviderPriceID:        ps.PriceID,
	}
	if err := s.store.UpsertByUser(ctx, rec); err != nil {
		return fmt.Errorf("apply subscription created: %w", err)
	}
	return nil
}

// applySubscriptionUpdated refreshes status, plan, and period dates from the
// provider payload. Absolute values keep duplicated deliveries convergent.
func (s *service) applySubscriptionUpdated(ctx context.Context, ps *ProviderSubscription) error {
	if ps == nil || ps.ID == "" {
		return nil
	}

	status := MapProviderStatus(ps.Status)
	upd := SubscriptionUpdate{
		Status: &status,
	}
	if ps.Interval != "" {
		plan := PlanFromInterval(ps.Interval)
		upd.PlanType = &plan
	}
	if !ps.PeriodStart.IsZero() {
		upd.StartDate = &ps.PeriodStart
	}
	if !ps.PeriodEnd.IsZero() {
		upd.EndDate = &ps.PeriodEnd
	}
	if ps.PriceID != "" {
		upd.ProviderPriceID = &ps.PriceID
	}

	err := s.store.UpdateByProviderSubscriptionID(ctx, ps.ID, upd)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrSubscriptionNotFound) {
		return fmt.Errorf("apply subscription updated: %w", err)
	}

	// The subscription ID is not known locally yet, which happens when the
	// update outruns creation. Fall back to the customer link and converge
	// through the user-keyed upsert.
	if ps.CustomerID == "" {
		s.log.WarnContext(ctx, "subscription update for unknown subscription",
			slog.String("subscription_id", ps.ID))
		return nil
	}
	existing, err := s.store.FindByProviderCustomerID(ctx, ps.CustomerID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			s.log.WarnContext(ctx, "subscription update for unknown customer",
				slog.String("subscription_id", ps.ID),
				slog.String("customer_id", ps.CustomerID))
			return nil
		}
		return fmt.Errorf("apply subscription updated: %w", err)
	}

	rec := &Subscription{
		UserID:                 existing.UserID,
		PlanType:               PlanFromInterval(ps.Interval),
		Status:                 status,
		StartDate:              ps.PeriodStart,
		EndDate:                ps.PeriodEnd,
		ProviderCustomerID:     ps.CustomerID,
		ProviderSubscriptionID: ps.ID,
		ProviderPriceID:        ps.PriceID,
	}
	if err := s.store.UpsertByUser(ctx, rec); err != nil {
		return fmt.Errorf("apply subscription updated: %w", err)
	}
	return nil
}

// applyStatus sets the status (and optionally the period end) of the record
// matching a provider subscription ID. Unknown subscriptions are logged and
// acknowledged; redelivery cannot resolve them.
func (s *service) applyStatus(ctx context.Context, providerSubID string, status Status, endDate *time.Time) error {
	if providerSubID == "" {
		return nil
	}
	err := s.store.UpdateByProviderSubscriptionID(ctx, providerSubID, SubscriptionUpdate{
		Status:  &status,
		EndDate: endDate,
	})
	if errors.Is(err, ErrSubscriptionNotFound) {
		s.log.WarnContext(ctx, "webhook for unknown subscription",
			slog.String("subscription_id", providerSubID),
			slog.String("status", string(status)))
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply status %s: %w", status, err)
	}
	return nil
}

func (s *service) CancelSubscription(ctx context.Context, id Identity, providerSubID string) (*CancelResult, error) {
	// Free subscriptions have no provider counterpart; cancellation is a
	// pure local status transition.
	if providerSubID == "" {
		current, err := s.store.FindActiveByUser(ctx, id.UserID)
		if err != nil {
			return nil, err
		}
		if !current.IsFree() {
			return nil, ErrMissingSubscription
		}
		current.Status = StatusCanceled
		if err := s.store.UpsertByUser(ctx, current); err != nil {
			return nil, fmt.Errorf("cancel free subscription: %w", err)
		}
		s.log.InfoContext(ctx, "free subscription canceled",
			slog.String("user_id", id.UserID.String()))
		return &CancelResult{Subscription: current, CancelAt: current.EndDate}, nil
	}

	// Ownership is checked against the store before any provider mutation.
	current, err := s.store.FindOwnedByProviderSubscriptionID(ctx, providerSubID, id.UserID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, ErrNotSubscriptionOwner
		}
		return nil, err
	}

	ps, err := s.provider.CancelAtPeriodEnd(ctx, providerSubID)
	if err != nil {
		// Provider call failed: no local change, so the user never believes
		// a cancellation happened that the provider does not know about.
		return nil, err
	}

	cancelAt := ps.CancelAt
	if cancelAt.IsZero() {
		cancelAt = ps.PeriodEnd
	}
	status := StatusCanceled
	upd := SubscriptionUpdate{Status: &status}
	if !cancelAt.IsZero() {
		upd.EndDate = &cancelAt
	}
	if err := s.store.UpdateByProviderSubscriptionID(ctx, providerSubID, upd); err != nil {
		// The provider-side cancellation already happened; surfacing the
		// store failure keeps the partial state visible instead of masking
		// it as success.
		return nil, fmt.Errorf("record cancellation: %w", err)
	}

	current.Status = StatusCanceled
	if !cancelAt.IsZero() {
		current.EndDate = cancelAt
	}
	s.log.InfoContext(ctx, "subscription canceled at period end",
		slog.String("user_id", id.UserID.String()),
		slog.String("subscription_id", providerSubID))
	return &CancelResult{Subscription: current, CancelAt: cancelAt}, nil
}

func (s *service) ChangeSubscription(ctx context.Context, id Identity, req ChangeRequest) (*CheckoutSession, error) {
	var current *Subscription
	var err error
	if req.ProviderSubscriptionID != "" {
		current, err = s.store.FindOwnedByProviderSubscriptionID(ctx, req.ProviderSubscriptionID, id.UserID)
		if err != nil {
			if errors.Is(err, ErrSubscriptionNotFound) {
				return nil, ErrNotSubscriptionOwner
			}
			return nil, err
		}
	} else {
		current, err = s.store.FindActiveByUser(ctx, id.UserID)
		if err != nil {
			return nil, err
		}
	}

	switch current.PlanType {
	case PlanAnnual:
		return nil, ErrAlreadyOnHighestPlan
	case PlanFree:
		// Free tiers have no provider subscription to modify; the caller
		// routes through the regular checkout flow instead.
		return nil, ErrCheckoutRequired
	}

	if req.NewPriceID == "" {
		return nil, ErrMissingPriceID
	}

	customerID := current.ProviderCustomerID
	if customerID == "" {
		customerID, err = s.ensureCustomer(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	// The session completion is reconciled asynchronously through the
	// verifier or the webhook path; nothing local changes here.
	sess, err := s.provider.CreateCheckoutSession(ctx, SessionRequest{
		CustomerID:     customerID,
		PriceID:        req.NewPriceID,
		UserID:         id.UserID,
		PlanType:       PlanAnnual,
		SuccessURL:     withSessionPlaceholder(req.SuccessURL),
		CancelURL:      req.CancelURL,
		IdempotencyKey: s.idemKey(id.UserID, req.NewPriceID, s.now()),
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "upgrade checkout session created",
		slog.String("user_id", id.UserID.String()),
		slog.String("session_id", sess.ID))
	return sess, nil
}

func (s *service) StartFreeTrial(ctx context.Context, id Identity) (*Subscription, error) {
	if _, err := s.store.FindActiveByUser(ctx, id.UserID); err == nil {
		return nil, ErrSubscriptionAlreadyExists
	} else if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}

	now := s.now()
	rec := &Subscription{
		UserID:    id.UserID,
		PlanType:  PlanFree,
		Status:    StatusActive,
		StartDate: now,
		EndDate:   now.AddDate(0, 0, freeTrialDays),
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("start free trial: %w", err)
	}

	s.log.InfoContext(ctx, "free trial started",
		slog.String("user_id", id.UserID.String()))
	return rec, nil
}

func (s *service) ActiveSubscription(ctx context.Context, id Identity) (*Subscription, error) {
	return s.store.FindActiveByUser(ctx, id.UserID)
}
