package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rewritemessage/rewriter/internal/logging"
	"github.com/rewritemessage/rewriter/internal/rewriter/registry"
	"github.com/rewritemessage/rewriter/internal/rewriter/rwmetrics"
)

// Decision is the outcome of TryConsume.
type Decision struct {
	Allowed bool
	// UsageAfter is the usage the account will have once the billable action
	// succeeds and is recorded. Equal to the current usage when not allowed.
	UsageAfter int
	Limit      int
	Tier       registry.Tier
}

// Err returns ErrQuotaExceeded for a denied decision.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return ErrQuotaExceeded
}

// Rewrite describes one completed billable action.
type Rewrite struct {
	Tone         string
	InputLength  int
	OutputLength int
}

// Ledger gates billable actions against the resolved entitlement and records
// usage after they succeed.
type Ledger struct {
	store registry.Store
	now   func() time.Time
}

// NewLedger creates a ledger backed by store. A nil clock uses time.Now.
func NewLedger(store registry.Store, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, now: now}
}

// Now returns the ledger clock in UTC.
func (l *Ledger) Now() time.Time {
	return l.now().UTC()
}

// TryConsume checks whether a may perform one more billable action. It never
// mutates state; the caller performs the action and then calls Commit.
func (l *Ledger) TryConsume(a *registry.Account) Decision {
	ent := Resolve(a, l.Now())
	return decide(ent)
}

// TryConsumeAnonymous is the client-counter variant of TryConsume.
func (l *Ledger) TryConsumeAnonymous(s Session) Decision {
	return decide(ResolveAnonymous(s, l.Now()))
}

func decide(ent Entitlement) Decision {
	if ent.Remaining <= 0 {
		return Decision{Allowed: false, UsageAfter: ent.Usage, Limit: ent.Limit, Tier: ent.Tier}
	}
	return Decision{Allowed: true, UsageAfter: ent.Usage + 1, Limit: ent.Limit, Tier: ent.Tier}
}

// Record increments today's usage for accountID and appends the rewrite log
// row. It returns the new usage count.
func (l *Ledger) Record(ctx context.Context, accountID string, rw Rewrite) (int, error) {
	now := l.Now()
	usage, err := l.store.IncrementUsage(ctx, accountID, now)
	if err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	entry := registry.RewriteLog{
		ID:           ulid.Make().String(),
		AccountID:    accountID,
		Tone:         rw.Tone,
		InputLength:  rw.InputLength,
		OutputLength: rw.OutputLength,
		CreatedAt:    now,
	}
	if err := l.store.RecordRewrite(ctx, entry); err != nil {
		return usage, fmt.Errorf("record rewrite: %w", err)
	}
	return usage, nil
}

// Commit records a successful billable action. Failures are logged and
// swallowed: the user already has their result. The returned usage falls back
// to the decision's UsageAfter when the increment did not land.
func (l *Ledger) Commit(ctx context.Context, accountID string, d Decision, rw Rewrite) int {
	usage, err := l.Record(ctx, accountID, rw)
	if err != nil {
		rwmetrics.UsageTrackingFailures.Inc()
		logging.FromContext(ctx).Error().Err(err).
			Str("account_id", accountID).
			Msg("Failed to track rewrite usage")
	}
	if usage == 0 {
		return d.UsageAfter
	}
	return usage
}
