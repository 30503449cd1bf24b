package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/rewritemessage/rewriter/internal/rewriter/registry"
)

const maxReferralCodeAttempts = 5

// Provisioner returns the account for a verified identity, creating it on
// first sight.
type Provisioner struct {
	store registry.Store
	group singleflight.Group
}

// NewProvisioner creates a provisioner backed by store.
func NewProvisioner(store registry.Store) *Provisioner {
	return &Provisioner{store: store}
}

// Ensure loads the account for id, creating a free account with a fresh
// referral code when none exists. Concurrent first requests for the same
// user share one creation.
func (p *Provisioner) Ensure(ctx context.Context, id Identity) (*registry.Account, error) {
	a, err := p.store.Get(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if a != nil {
		return a, nil
	}

	// The shared creation must outlive whichever caller happens to start it.
	v, err, _ := p.group.Do(id.UserID, func() (any, error) {
		return p.create(context.WithoutCancel(ctx), id)
	})
	if err != nil {
		return nil, err
	}
	// Each caller gets its own copy.
	cp := *v.(*registry.Account)
	return &cp, nil
}

func (p *Provisioner) create(ctx context.Context, id Identity) (*registry.Account, error) {
	for attempt := 0; attempt < maxReferralCodeAttempts; attempt++ {
		code, err := registry.GenerateReferralCode()
		if err != nil {
			return nil, err
		}
		a := &registry.Account{
			ID:           id.UserID,
			Email:        id.Email,
			Tier:         registry.TierFree,
			ReferralCode: code,
		}
		err = p.store.Create(ctx, a)
		if err == nil {
			log.Info().Str("account_id", a.ID).Msg("Account created")
			return a, nil
		}
		if !errors.Is(err, registry.ErrDuplicate) {
			return nil, fmt.Errorf("create account: %w", err)
		}

		// Either another instance created the row or the referral code
		// collided. Re-read to tell which.
		existing, getErr := p.store.Get(ctx, id.UserID)
		if getErr != nil {
			return nil, fmt.Errorf("load account: %w", getErr)
		}
		if existing != nil {
			return existing, nil
		}
	}
	return nil, fmt.Errorf("create account %q: referral code space exhausted after %d attempts", id.UserID, maxReferralCodeAttempts)
}
