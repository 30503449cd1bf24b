// Package quota computes daily rewrite allowances and records usage.
package quota

import (
	"errors"
	"time"

	"github.com/rewritemessage/rewriter/internal/rewriter/registry"
)

// Quota thresholds.
const (
	FreeDailyLimit = 3
	ProDailyLimit  = 30
	ReferralBonus  = 3
	MaxBonus       = 15
)

// ErrQuotaExceeded is returned when no rewrites remain for the current day.
var ErrQuotaExceeded = errors.New("daily quota exceeded")

// Entitlement is the resolved allowance for one account on one UTC day.
type Entitlement struct {
	Tier      registry.Tier
	Usage     int
	Limit     int
	Remaining int
}

// Limit returns the daily limit for a tier. Bonuses only count on the free
// tier and are clamped to [0, MaxBonus].
func Limit(tier registry.Tier, bonus int) int {
	if tier == registry.TierPro {
		return ProDailyLimit
	}
	return FreeDailyLimit + clamp(bonus, 0, MaxBonus)
}

// Remaining returns max(0, limit-usage).
func Remaining(limit, usage int) int {
	return max(0, limit-max(0, usage))
}

// Resolve computes the entitlement of a at now. Usage from an earlier UTC day
// reads as zero.
func Resolve(a *registry.Account, now time.Time) Entitlement {
	if a == nil {
		return Entitlement{Tier: registry.TierFree, Limit: FreeDailyLimit, Remaining: FreeDailyLimit}
	}
	limit := Limit(a.Tier, a.BonusRewrites)
	usage := a.UsageOn(now)
	return Entitlement{
		Tier:      a.Tier,
		Usage:     usage,
		Limit:     limit,
		Remaining: Remaining(limit, usage),
	}
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
