package billing

import (
	"log/slog"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*service)

// WithLogger sets the structured logger used by the service.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source. Useful for tests with fixed time values.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIdempotencyKeyFunc overrides how checkout-session idempotency keys are
// derived.
func WithIdempotencyKeyFunc(fn IdempotencyKeyFunc) ServiceOption {
	return func(s *service) {
		if fn != nil {
			s.idemKey = fn
		}
	}
}
