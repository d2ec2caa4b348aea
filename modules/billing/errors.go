package billing

import (
	"errors"
	"net/http"

	"github.com/movesage/movesage/binder"
	"github.com/movesage/movesage/core"
	bill "github.com/movesage/movesage/pkg/billing"
)

// httpError translates domain sentinels into the HTTP error taxonomy. The
// client-facing key is stable; the underlying error text never leaks.
func httpError(err error) core.HTTPError {
	switch {
	case errors.Is(err, bill.ErrSubscriptionNotFound):
		return core.ErrNotFound
	case errors.Is(err, bill.ErrNotSubscriptionOwner),
		errors.Is(err, bill.ErrSessionUserMismatch):
		return core.ErrForbidden
	case errors.Is(err, bill.ErrSubscriptionAlreadyExists):
		return core.NewHTTPError(http.StatusConflict, "subscription_already_exists")
	case errors.Is(err, bill.ErrAlreadyOnHighestPlan):
		return core.NewHTTPError(http.StatusConflict, "already_on_highest_plan")
	case errors.Is(err, bill.ErrCheckoutRequired):
		return core.NewHTTPError(http.StatusConflict, "checkout_required")
	case errors.Is(err, bill.ErrMissingPriceID):
		return core.NewHTTPError(http.StatusBadRequest, "missing_price_id")
	case errors.Is(err, bill.ErrMissingSessionID):
		return core.NewHTTPError(http.StatusBadRequest, "missing_session_id")
	case errors.Is(err, bill.ErrMissingSubscription):
		return core.NewHTTPError(http.StatusBadRequest, "missing_subscription_id")
	case errors.Is(err, bill.ErrInvalidPlanType):
		return core.NewHTTPError(http.StatusBadRequest, "invalid_plan_type")
	case errors.Is(err, bill.ErrPaymentNotCompleted):
		return core.NewHTTPError(http.StatusBadRequest, "payment_not_completed")
	case errors.Is(err, bill.ErrSessionWithoutSubscription):
		return core.NewHTTPError(http.StatusBadRequest, "session_without_subscription")
	case errors.Is(err, bill.ErrProviderError),
		errors.Is(err, bill.ErrNoCheckoutURL):
		return core.ErrBadGateway
	default:
		return core.ErrInternalServerError
	}
}

// bindError classifies request binding failures so malformed payloads come
// back as 400 instead of 500.
func bindError(err error) error {
	var httpErr core.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	switch {
	case errors.Is(err, binder.ErrInvalidJSON),
		errors.Is(err, binder.ErrInvalidQuery),
		errors.Is(err, binder.ErrMissingContentType),
		errors.Is(err, binder.ErrUnsupportedMediaType):
		return core.ErrBadRequest
	default:
		return core.ErrInternalServerError
	}
}
