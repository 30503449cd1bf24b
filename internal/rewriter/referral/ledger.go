// Package referral applies one-time referral bonuses.
package referral

import (
	"context"
	"errors"
	"fmt"

	"github.com/rewritemessage/rewriter/internal/logging"
	"github.com/rewritemessage/rewriter/internal/rewriter/quota"
	"github.com/rewritemessage/rewriter/internal/rewriter/registry"
)

// Rejection reasons, checked in this order.
var (
	ErrMissingCode      = errors.New("referral code is required")
	ErrUnknownCode      = errors.New("invalid referral code")
	ErrSelfReferral     = errors.New("cannot use your own referral code")
	ErrAlreadyReferred  = errors.New("referral already applied")
	ErrUnknownApplicant = errors.New("applicant account not found")
)

// Result is the outcome of a successful application.
type Result struct {
	BonusAwarded  int
	ReferrerBonus int
}

// Ledger applies referral codes against the account store.
type Ledger struct {
	store registry.Store
}

// NewLedger creates a referral ledger.
func NewLedger(store registry.Store) *Ledger {
	return &Ledger{store: store}
}

// Apply credits the owner of code and the applicant. The applicant is marked
// first with a conditional write so a concurrent second application cannot
// award twice; the referrer credit follows as an independent write.
func (l *Ledger) Apply(ctx context.Context, code, applicantID string) (Result, error) {
	code = registry.NormalizeReferralCode(code)
	if code == "" {
		return Result{}, ErrMissingCode
	}

	referrer, err := l.store.GetByReferralCode(ctx, code)
	if err != nil {
		return Result{}, fmt.Errorf("lookup referral code: %w", err)
	}
	if referrer == nil {
		return Result{}, ErrUnknownCode
	}
	if referrer.ID == applicantID {
		return Result{}, ErrSelfReferral
	}

	applicant, err := l.store.Get(ctx, applicantID)
	if err != nil {
		return Result{}, fmt.Errorf("load applicant: %w", err)
	}
	if applicant == nil {
		return Result{}, ErrUnknownApplicant
	}
	if applicant.ReferredBy != "" {
		return Result{}, ErrAlreadyReferred
	}

	marked, err := l.store.MarkReferred(ctx, applicantID, code, quota.ReferralBonus)
	if err != nil {
		return Result{}, fmt.Errorf("mark applicant referred: %w", err)
	}
	if !marked {
		return Result{}, ErrAlreadyReferred
	}

	res := Result{BonusAwarded: quota.ReferralBonus}
	bonus, err := l.store.AddBonus(ctx, referrer.ID, quota.ReferralBonus, quota.MaxBonus)
	if err != nil {
		// The applicant keeps the referral; the referrer credit is lost.
		logging.FromContext(ctx).Error().Err(err).
			Str("referrer_id", referrer.ID).
			Str("applicant_id", applicantID).
			Msg("Failed to credit referrer bonus")
		return res, nil
	}
	res.ReferrerBonus = bonus
	return res, nil
}
