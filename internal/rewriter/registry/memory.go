package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a process-local Store used by tests and `serve --in-memory`.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	rewrites []RewriteLog
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*Account)}
}

func (m *MemoryStore) Create(_ context.Context, a *Account) error {
	if a == nil {
		return fmt.Errorf("account is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[a.ID]; ok {
		return fmt.Errorf("create account %q: %w", a.ID, ErrDuplicate)
	}
	for _, existing := range m.accounts {
		if existing.ReferralCode == a.ReferralCode {
			return fmt.Errorf("create account %q: %w", a.ID, ErrDuplicate)
		}
	}

	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Tier == "" {
		a.Tier = TierFree
	}
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyOf(m.accounts[id]), nil
}

func (m *MemoryStore) GetByReferralCode(_ context.Context, code string) (*Account, error) {
	code = NormalizeReferralCode(code)
	if code == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.ReferralCode == code {
			return m.copyOf(a), nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) GetByCustomerID(_ context.Context, customerID string) (*Account, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.StripeCustomerID == customerID {
			return m.copyOf(a), nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) IncrementUsage(_ context.Context, id string, now time.Time) (int, error) {
	now = now.UTC()
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return 0, fmt.Errorf("account %q not found", id)
	}
	a.DailyUsage = a.UsageOn(now) + 1
	a.LastUsageAt = now
	a.UpdatedAt = now
	return a.DailyUsage, nil
}

func (m *MemoryStore) MarkReferred(_ context.Context, id, code string, bonus int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok || a.ReferredBy != "" {
		return false, nil
	}
	a.ReferredBy = code
	a.BonusRewrites = bonus
	a.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MemoryStore) AddBonus(_ context.Context, id string, delta, max int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return 0, fmt.Errorf("account %q not found", id)
	}
	a.BonusRewrites = min(a.BonusRewrites+delta, max)
	a.UpdatedAt = time.Now().UTC()
	return a.BonusRewrites, nil
}

func (m *MemoryStore) SetCustomerID(_ context.Context, id, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return fmt.Errorf("set customer id: account %q not found", id)
	}
	a.StripeCustomerID = strings.TrimSpace(customerID)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) SetSubscription(_ context.Context, id string, tier Tier, subscriptionRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return fmt.Errorf("set subscription: account %q not found", id)
	}
	a.Tier = tier
	a.SubscriptionRef = subscriptionRef
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) RecordRewrite(_ context.Context, entry RewriteLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.rewrites = append(m.rewrites, entry)
	m.mu.Unlock()
	return nil
}

// Rewrites returns a snapshot of the rewrite log for accountID.
func (m *MemoryStore) Rewrites(accountID string) []RewriteLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RewriteLog
	for _, r := range m.rewrites {
		if r.AccountID == accountID {
			out = append(out, r)
		}
	}
	return out
}

func (m *MemoryStore) CountByTier(context.Context) (map[Tier]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[Tier]int)
	for _, a := range m.accounts {
		counts[a.Tier]++
	}
	return counts, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) copyOf(a *Account) *Account {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}
