package billing

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	bill "github.com/movesage/movesage/pkg/billing"
	"github.com/movesage/movesage/pkg/logger"
)

// maxWebhookBody caps webhook payloads well above anything the provider
// sends while keeping a hostile client from streaming an unbounded body.
const maxWebhookBody = 64 << 10

// Webhook receives asynchronous provider events. It lives outside the
// authenticated router: the only trust anchor is the payload signature.
type Webhook struct {
	svc bill.Service
	log *slog.Logger
}

// WebhookOption configures the webhook receiver.
type WebhookOption func(*Webhook)

// WithWebhookLogger sets the logger for the webhook receiver.
func WithWebhookLogger(log *slog.Logger) WebhookOption {
	return func(wh *Webhook) {
		if log != nil {
			wh.log = log
		}
	}
}

// NewWebhook creates the provider webhook receiver.
func NewWebhook(svc bill.Service, opts ...WebhookOption) *Webhook {
	if svc == nil {
		panic("billing module: service is required")
	}

	wh := &Webhook{
		svc: svc,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(wh)
	}
	return wh
}

func (wh *Webhook) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/stripe", wh.receive)
	return r
}

// receive reads the raw body before any decoding so the signature check
// covers the exact bytes the provider signed. Store failures return 5xx on
// purpose: the provider redelivers and the event is applied idempotently.
func (wh *Webhook) receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		wh.log.WarnContext(ctx, "webhook body rejected", logger.Error(err))
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if err := wh.svc.HandleWebhook(ctx, payload, signature); err != nil {
		if errors.Is(err, bill.ErrWebhookVerificationFailed) {
			wh.log.WarnContext(ctx, "webhook signature verification failed", logger.Error(err))
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}
		wh.log.ErrorContext(ctx, "webhook processing failed", logger.Error(err))
		http.Error(w, "event not processed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]bool{"received": true}); err != nil {
		wh.log.ErrorContext(ctx, "failed to write webhook ack", logger.Error(err))
	}
}
