// Package stripe derives account tiers from Stripe billing events and serves
// the checkout, billing-portal and webhook endpoints.
package stripe

import (
	"strings"

	"github.com/rewritemessage/rewriter/internal/rewriter/registry"
)

// TierForStatus maps a Stripe subscription status to a tier. Only active and
// trialing subscriptions grant the paid tier; unknown statuses fail closed.
func TierForStatus(status string) registry.Tier {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "trialing":
		return registry.TierPro
	default:
		return registry.TierFree
	}
}

// IsSafeStripeID validates that a Stripe ID (cus_..., sub_...) is safe for
// use as a lookup key.
func IsSafeStripeID(stripeID string) bool {
	if len(stripeID) < 5 || len(stripeID) > 128 {
		return false
	}
	for i := 0; i < len(stripeID); i++ {
		c := stripeID[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '-' {
			continue
		}
		return false
	}
	return true
}
