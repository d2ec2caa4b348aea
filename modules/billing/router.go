package billing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Mountable interface {
	Handle() http.Handler
}

// RouterOptions configures which services to mount in the billing module.
// Each service is optional and will only be mounted if provided.
type RouterOptions struct {
	// Subscriptions serves the authenticated subscription endpoints.
	Subscriptions Mountable
	// Webhooks serves the provider webhook receiver.
	Webhooks Mountable
}

// Router creates a new billing module router with configurable services.
//
// Example:
//
//	subsSvc := billing.NewService(billingSvc, tokens)
//	webhookSvc := billing.NewWebhook(billingSvc)
//
//	r := chi.NewRouter()
//	r.Mount("/", billing.Router(billing.RouterOptions{
//	    Subscriptions: subsSvc,
//	    Webhooks:      webhookSvc,
//	}))
func Router(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	if opts.Subscriptions != nil {
		r.Mount("/billing", opts.Subscriptions.Handle())
	}
	if opts.Webhooks != nil {
		r.Mount("/webhooks", opts.Webhooks.Handle())
	}

	return r
}
