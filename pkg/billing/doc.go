// Package billing keeps a local subscription record consistent with an
// external payment provider's source of truth.
//
// The provider drives state through two converging paths: the synchronous
// checkout verification triggered by the user's redirect, and asynchronous
// webhook deliveries that may arrive before or after it, out of order, or
// duplicated. Both paths terminate in user-keyed atomic upserts and
// absolute-value updates keyed by the provider subscription ID, so repeated
// application of the same event converges on the same end state.
//
// Usage:
//
//	provider, err := billing.NewStripeProvider(stripeCfg)
//	if err != nil {
//		return err
//	}
//	svc := billing.NewService(store, customers, provider,
//		billing.WithLogger(log),
//	)
//
//	sess, err := svc.CreateCheckoutSession(ctx, identity, billing.CheckoutRequest{
//		PlanType:   billing.PlanMonthly,
//		PriceID:    "price_monthly",
//		SuccessURL: "https://app.example.com/subscription/success",
//		CancelURL:  "https://app.example.com/subscribe",
//	})
//
// Stores are pluggable: NewPostgresStores backs the service with pgx, and
// NewMemoryStores serves tests and local development.
package billing
