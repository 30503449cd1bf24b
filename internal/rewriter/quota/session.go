package quota

import (
	"time"

	"github.com/rewritemessage/rewriter/internal/rewriter/registry"
)

const sessionDayLayout = "2006-01-02"

// Session is the client-held usage counter of an anonymous visitor. The
// server never stores it; it only reads it and hands back the advanced copy.
type Session struct {
	Count int    `json:"count"`
	Day   string `json:"day"`
}

// UsageOn returns the session count if it belongs to now's UTC day.
func (s Session) UsageOn(now time.Time) int {
	if s.Day != Day(now) || s.Count < 0 {
		return 0
	}
	return s.Count
}

// Advance returns the session after one more successful rewrite at now.
func (s Session) Advance(now time.Time) Session {
	return Session{Count: s.UsageOn(now) + 1, Day: Day(now)}
}

// ResolveAnonymous computes the entitlement of an anonymous session. No
// bonuses apply.
func ResolveAnonymous(s Session, now time.Time) Entitlement {
	usage := s.UsageOn(now)
	return Entitlement{
		Tier:      registry.TierFree,
		Usage:     usage,
		Limit:     FreeDailyLimit,
		Remaining: Remaining(FreeDailyLimit, usage),
	}
}

// Day formats t as its UTC calendar day.
func Day(t time.Time) string {
	return t.UTC().Format(sessionDayLayout)
}
