package billing

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/movesage/movesage/binder"
	"github.com/movesage/movesage/core"
	bill "github.com/movesage/movesage/pkg/billing"
	"github.com/movesage/movesage/pkg/jwt"
	"github.com/movesage/movesage/pkg/logger"
)

// CheckoutSessionRequest starts a provider checkout for a paid plan.
type CheckoutSessionRequest struct {
	PlanType   string `json:"plan_type"`
	PriceID    string `json:"price_id"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

// VerifySessionRequest carries the session id returned to the success URL.
// The query tag accepts the provider redirect shape (?session_id=...) directly.
type VerifySessionRequest struct {
	SessionID string `json:"session_id" query:"session_id"`
}

// CancelSubscriptionRequest identifies the subscription to cancel. An empty
// SubscriptionID cancels a free-tier subscription that has no provider record.
type CancelSubscriptionRequest struct {
	SubscriptionID string `json:"subscription_id"`
}

// ChangePlanRequest upgrades a subscription to the given price.
type ChangePlanRequest struct {
	SubscriptionID string `json:"subscription_id"`
	NewPriceID     string `json:"new_price_id"`
	SuccessURL     string `json:"success_url"`
	CancelURL      string `json:"cancel_url"`
}

// Service exposes the authenticated subscription endpoints.
type Service struct {
	svc          bill.Service
	tokens       *jwt.Service
	log          *slog.Logger
	errorHandler core.ErrorHandler[core.Context]
}

// ServiceOption configures the billing HTTP service.
type ServiceOption func(*Service)

// WithLogger sets the logger used for request-scope failures.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates the subscription endpoint service.
func NewService(svc bill.Service, tokens *jwt.Service, opts ...ServiceOption) *Service {
	if svc == nil {
		panic("billing module: service is required")
	}
	if tokens == nil {
		panic("billing module: token service is required")
	}

	s := &Service{
		svc:    svc,
		tokens: tokens,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.errorHandler == nil {
		s.errorHandler = s.renderError
	}
	return s
}

func (s *Service) Handle() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withIdentity)

	r.Post("/checkout-session", core.Wrap(s.createCheckoutSession,
		core.WithBinder[core.Context, CheckoutSessionRequest](binder.BindJSON()),
		core.WithErrorHandler[core.Context, CheckoutSessionRequest](s.errorHandler),
		core.WithDecorators(timed[CheckoutSessionRequest](s.log, "create_checkout_session")),
	))
	// GET takes the provider redirect shape (?session_id=...), POST takes JSON.
	r.Get("/verify-session", core.Wrap(s.verifySession,
		core.WithBinder[core.Context, VerifySessionRequest](binder.Query()),
		core.WithErrorHandler[core.Context, VerifySessionRequest](s.errorHandler),
		core.WithDecorators(timed[VerifySessionRequest](s.log, "verify_checkout_session")),
	))
	r.Post("/verify-session", core.Wrap(s.verifySession,
		core.WithBinder[core.Context, VerifySessionRequest](binder.BindJSON()),
		core.WithErrorHandler[core.Context, VerifySessionRequest](s.errorHandler),
		core.WithDecorators(timed[VerifySessionRequest](s.log, "verify_checkout_session")),
	))
	r.Post("/cancel", core.Wrap(s.cancelSubscription,
		core.WithBinder[core.Context, CancelSubscriptionRequest](binder.BindJSON()),
		core.WithErrorHandler[core.Context, CancelSubscriptionRequest](s.errorHandler),
		core.WithDecorators(timed[CancelSubscriptionRequest](s.log, "cancel_subscription")),
	))
	r.Post("/change", core.Wrap(s.changePlan,
		core.WithBinder[core.Context, ChangePlanRequest](binder.BindJSON()),
		core.WithErrorHandler[core.Context, ChangePlanRequest](s.errorHandler),
		core.WithDecorators(timed[ChangePlanRequest](s.log, "change_subscription")),
	))
	r.Post("/trial", core.Wrap(s.startFreeTrial,
		core.WithErrorHandler[core.Context, struct{}](s.errorHandler),
		core.WithDecorators(timed[struct{}](s.log, "start_free_trial")),
	))
	r.Get("/subscription", core.Wrap(s.activeSubscription,
		core.WithErrorHandler[core.Context, struct{}](s.errorHandler),
		core.WithDecorators(timed[struct{}](s.log, "active_subscription")),
	))

	return r
}

// timed wraps a handler with debug-level duration logging per operation.
func timed[R any](log *slog.Logger, op string) core.Decorator[core.Context, R] {
	return func(next core.HandlerFunc[core.Context, R]) core.HandlerFunc[core.Context, R] {
		return func(ctx core.Context, req R) core.Response {
			start := time.Now()
			resp := next(ctx, req)
			log.DebugContext(ctx, "billing operation completed",
				slog.String("operation", op),
				slog.Duration("duration", time.Since(start)))
			return resp
		}
	}
}

func (s *Service) createCheckoutSession(ctx core.Context, req CheckoutSessionRequest) core.Response {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return core.JSONError(core.ErrUnauthorized)
	}

	session, err := s.svc.CreateCheckoutSession(ctx, id, bill.CheckoutRequest{
		PlanType:   bill.PlanType(req.PlanType),
		PriceID:    req.PriceID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "checkout session creation failed",
			logger.Error(err), logger.UserID(id.UserID), logger.Plan(req.PlanType))
		return core.JSONError(httpError(err))
	}

	return core.JSON("ok", CheckoutSessionResponse{SessionID: session.ID, URL: session.URL}, nil)
}

func (s *Service) verifySession(ctx core.Context, req VerifySessionRequest) core.Response {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return core.JSONError(core.ErrUnauthorized)
	}

	sub, err := s.svc.VerifyCheckoutSession(ctx, id, req.SessionID)
	if err != nil {
		s.log.ErrorContext(ctx, "checkout session verification failed",
			logger.Error(err), logger.UserID(id.UserID), logger.SessionID(req.SessionID))
		return core.JSONError(httpError(err))
	}

	return core.JSON("ok", newSubscriptionResponse(sub), nil)
}

func (s *Service) cancelSubscription(ctx core.Context, req CancelSubscriptionRequest) core.Response {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return core.JSONError(core.ErrUnauthorized)
	}

	res, err := s.svc.CancelSubscription(ctx, id, req.SubscriptionID)
	if err != nil {
		s.log.ErrorContext(ctx, "subscription cancellation failed",
			logger.Error(err), logger.UserID(id.UserID), logger.SubscriptionID(req.SubscriptionID))
		return core.JSONError(httpError(err))
	}

	return core.JSON("ok", CancelResponse{
		Subscription: newSubscriptionResponse(res.Subscription),
		CancelAt:     res.CancelAt,
	}, nil)
}

func (s *Service) changePlan(ctx core.Context, req ChangePlanRequest) core.Response {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return core.JSONError(core.ErrUnauthorized)
	}

	session, err := s.svc.ChangeSubscription(ctx, id, bill.ChangeRequest{
		ProviderSubscriptionID: req.SubscriptionID,
		NewPriceID:             req.NewPriceID,
		SuccessURL:             req.SuccessURL,
		CancelURL:              req.CancelURL,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "plan change failed",
			logger.Error(err), logger.UserID(id.UserID), logger.SubscriptionID(req.SubscriptionID))
		return core.JSONError(httpError(err))
	}

	return core.JSON("ok", CheckoutSessionResponse{SessionID: session.ID, URL: session.URL}, nil)
}

func (s *Service) startFreeTrial(ctx core.Context, _ struct{}) core.Response {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return core.JSONError(core.ErrUnauthorized)
	}

	sub, err := s.svc.StartFreeTrial(ctx, id)
	if err != nil {
		s.log.ErrorContext(ctx, "free trial activation failed",
			logger.Error(err), logger.UserID(id.UserID))
		return core.JSONError(httpError(err))
	}

	return core.JSON("ok", newSubscriptionResponse(sub), nil)
}

func (s *Service) activeSubscription(ctx core.Context, _ struct{}) core.Response {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return core.JSONError(core.ErrUnauthorized)
	}

	sub, err := s.svc.ActiveSubscription(ctx, id)
	if err != nil {
		return core.JSONError(httpError(err))
	}

	return core.JSON("ok", newSubscriptionResponse(sub), nil)
}

// renderError is the fallback handler for binding and rendering failures.
func (s *Service) renderError(ctx core.Context, err error) {
	resp := core.JSONError(bindError(err))
	if rerr := resp.Render(ctx.ResponseWriter(), ctx.Request()); rerr != nil {
		s.log.ErrorContext(ctx, "failed to render error response", logger.Errors(err, rerr))
	}
}
