package registry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Tier is the entitlement class of an account.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// Account is the per-user record owned by the account store.
type Account struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Tier             Tier      `json:"tier"`
	BonusRewrites    int       `json:"bonus_rewrites"`
	ReferralCode     string    `json:"referral_code"`
	ReferredBy       string    `json:"referred_by,omitempty"`
	StripeCustomerID string    `json:"stripe_customer_id,omitempty"`
	SubscriptionRef  string    `json:"subscription_ref,omitempty"`
	DailyUsage       int       `json:"daily_usage"`
	LastUsageAt      time.Time `json:"last_usage_at"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// UsageOn returns the usage count that applies on now's UTC day. A counter
// last touched on an earlier day reads as zero.
func (a *Account) UsageOn(now time.Time) int {
	if a == nil || !IsSameUTCDay(a.LastUsageAt, now) {
		return 0
	}
	return a.DailyUsage
}

// IsPro reports whether the account currently holds the paid tier.
func (a *Account) IsPro() bool {
	return a != nil && a.Tier == TierPro
}

// RewriteLog is one row of the append-only rewrite log.
type RewriteLog struct {
	ID           string
	AccountID    string
	Tone         string
	InputLength  int
	OutputLength int
	CreatedAt    time.Time
}

// Store is the account store contract shared by the SQLite and in-memory
// implementations. Lookups return (nil, nil) when no row matches.
//
// Usage counters are owned by IncrementUsage; no other method writes them.
type Store interface {
	Create(ctx context.Context, a *Account) error
	Get(ctx context.Context, id string) (*Account, error)
	GetByReferralCode(ctx context.Context, code string) (*Account, error)
	GetByCustomerID(ctx context.Context, customerID string) (*Account, error)

	// IncrementUsage adds one to today's usage (UTC), resetting the counter
	// first when the last recorded use was on an earlier day. It returns the
	// new count.
	IncrementUsage(ctx context.Context, id string, now time.Time) (int, error)

	// MarkReferred sets referredBy and the flat applicant bonus, but only
	// while referredBy is unset. It reports whether the write happened.
	MarkReferred(ctx context.Context, id, code string, bonus int) (bool, error)

	// AddBonus raises bonusRewrites by delta, capped at max, and returns the
	// resulting value.
	AddBonus(ctx context.Context, id string, delta, max int) (int, error)

	SetCustomerID(ctx context.Context, id, customerID string) error

	// SetSubscription overwrites tier and subscriptionRef together.
	SetSubscription(ctx context.Context, id string, tier Tier, subscriptionRef string) error

	RecordRewrite(ctx context.Context, entry RewriteLog) error

	// CountByTier returns the number of accounts per tier.
	CountByTier(ctx context.Context) (map[Tier]int, error)

	Ping(ctx context.Context) error
	Close() error
}

// ErrDuplicate is returned by Create when the id or referral code is taken.
var ErrDuplicate = errors.New("account already exists")

// crockfordBase32 is the Crockford base32 alphabet (excludes I, L, O, U).
const crockfordBase32 = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const referralCodeLength = 8

// GenerateReferralCode returns 8 random Crockford base32 characters
// (40 bits of entropy).
func GenerateReferralCode() (string, error) {
	b := make([]byte, referralCodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate referral code: %w", err)
	}
	var sb strings.Builder
	for _, v := range b {
		sb.WriteByte(crockfordBase32[int(v)%len(crockfordBase32)])
	}
	return sb.String(), nil
}

// NormalizeReferralCode upper-cases and trims a user supplied code so that
// lookups are case-insensitive.
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsSameUTCDay reports whether a and b fall on the same calendar day in UTC.
// A zero time is never on the same day as anything.
func IsSameUTCDay(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// StartOfUTCDay truncates t to midnight UTC.
func StartOfUTCDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
