package billing

// MapProviderStatus translates a provider subscription or invoice status into
// the local three-valued status.
//
// Unrecognized values map to StatusActive. This fails open on purpose: a new
// provider status must not lock out a paying user. The trade-off is that an
// unmapped delinquent state also grants access until the next recognized
// event arrives.
func MapProviderStatus(providerStatus string) Status {
	switch providerStatus {
	case "active", "trialing":
		return StatusActive
	case "canceled", "incomplete_expired":
		return StatusCanceled
	case "past_due", "incomplete", "unpaid":
		return StatusPastDue
	default:
		return StatusActive
	}
}

// PlanFromInterval derives the plan tier from a provider price billing
// interval ("year" or "month"). Anything that is not yearly bills monthly.
func PlanFromInterval(interval string) PlanType {
	if interval == "year" {
		return PlanAnnual
	}
	return PlanMonthly
}
