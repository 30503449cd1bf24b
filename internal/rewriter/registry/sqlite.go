package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the production account store backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the account database in dir.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}

	dbPath := filepath.Join(dir, "accounts.db")
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open account db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id                 TEXT PRIMARY KEY,
		email              TEXT NOT NULL DEFAULT '',
		tier               TEXT NOT NULL DEFAULT 'free',
		bonus_rewrites     INTEGER NOT NULL DEFAULT 0,
		referral_code      TEXT NOT NULL UNIQUE,
		referred_by        TEXT NOT NULL DEFAULT '',
		stripe_customer_id TEXT NOT NULL DEFAULT '',
		subscription_ref   TEXT NOT NULL DEFAULT '',
		daily_usage        INTEGER NOT NULL DEFAULT 0,
		last_usage_at      INTEGER NOT NULL DEFAULT 0,
		created_at         INTEGER NOT NULL,
		updated_at         INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_accounts_stripe_customer_id ON accounts(stripe_customer_id);

	CREATE TABLE IF NOT EXISTS rewrites (
		id            TEXT PRIMARY KEY,
		account_id    TEXT NOT NULL,
		tone          TEXT NOT NULL DEFAULT '',
		input_length  INTEGER NOT NULL DEFAULT 0,
		output_length INTEGER NOT NULL DEFAULT 0,
		created_at    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rewrites_account_id ON rewrites(account_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init account schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity (used for readiness probes).
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create inserts a new account record.
func (s *SQLiteStore) Create(ctx context.Context, a *Account) error {
	if a == nil {
		return fmt.Errorf("account is nil")
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Tier == "" {
		a.Tier = TierFree
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (
			id, email, tier, bonus_rewrites, referral_code, referred_by,
			stripe_customer_id, subscription_ref, daily_usage, last_usage_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, string(a.Tier), a.BonusRewrites, a.ReferralCode, a.ReferredBy,
		a.StripeCustomerID, a.SubscriptionRef, a.DailyUsage, unixOrZero(a.LastUsageAt),
		a.CreatedAt.Unix(), a.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create account %q: %w", a.ID, ErrDuplicate)
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

const accountColumns = `
	id, email, tier, bonus_rewrites, referral_code, referred_by,
	stripe_customer_id, subscription_ref, daily_usage, last_usage_at,
	created_at, updated_at`

// Get retrieves an account by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT`+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// GetByReferralCode retrieves the account that owns code.
func (s *SQLiteStore) GetByReferralCode(ctx context.Context, code string) (*Account, error) {
	code = NormalizeReferralCode(code)
	if code == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT`+accountColumns+` FROM accounts WHERE referral_code = ?`, code)
	return scanAccount(row)
}

// GetByCustomerID retrieves an account by Stripe customer ID.
func (s *SQLiteStore) GetByCustomerID(ctx context.Context, customerID string) (*Account, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT`+accountColumns+` FROM accounts WHERE stripe_customer_id = ?`, customerID)
	return scanAccount(row)
}

// IncrementUsage performs the day-partitioned +1 in a single statement so
// concurrent rewrites for the same account never lose an update.
func (s *SQLiteStore) IncrementUsage(ctx context.Context, id string, now time.Time) (int, error) {
	now = now.UTC()
	dayStart := StartOfUTCDay(now)
	var count int
	err := s.db.QueryRowContext(ctx, `
		UPDATE accounts SET
			daily_usage = CASE WHEN last_usage_at >= ? AND last_usage_at < ? THEN daily_usage + 1 ELSE 1 END,
			last_usage_at = ?,
			updated_at = ?
		WHERE id = ?
		RETURNING daily_usage`,
		dayStart.Unix(), dayStart.AddDate(0, 0, 1).Unix(), now.Unix(), now.Unix(), id,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("account %q not found", id)
		}
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return count, nil
}

// MarkReferred records the referral on the applicant while referred_by is
// still empty.
func (s *SQLiteStore) MarkReferred(ctx context.Context, id, code string, bonus int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET referred_by = ?, bonus_rewrites = ?, updated_at = ?
		WHERE id = ? AND referred_by = ''`,
		code, bonus, time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark referred: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark referred: %w", err)
	}
	return affected == 1, nil
}

// AddBonus raises the bonus atomically, never above max.
func (s *SQLiteStore) AddBonus(ctx context.Context, id string, delta, max int) (int, error) {
	var bonus int
	err := s.db.QueryRowContext(ctx, `
		UPDATE accounts SET
			bonus_rewrites = MIN(bonus_rewrites + ?, ?),
			updated_at = ?
		WHERE id = ?
		RETURNING bonus_rewrites`,
		delta, max, time.Now().UTC().Unix(), id,
	).Scan(&bonus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("account %q not found", id)
		}
		return 0, fmt.Errorf("add bonus: %w", err)
	}
	return bonus, nil
}

// SetCustomerID links the account to a Stripe customer.
func (s *SQLiteStore) SetCustomerID(ctx context.Context, id, customerID string) error {
	return s.exec1(ctx, "set customer id", id, `
		UPDATE accounts SET stripe_customer_id = ?, updated_at = ? WHERE id = ?`,
		strings.TrimSpace(customerID), time.Now().UTC().Unix(), id,
	)
}

// SetSubscription overwrites tier and subscription reference together.
func (s *SQLiteStore) SetSubscription(ctx context.Context, id string, tier Tier, subscriptionRef string) error {
	return s.exec1(ctx, "set subscription", id, `
		UPDATE accounts SET tier = ?, subscription_ref = ?, updated_at = ? WHERE id = ?`,
		string(tier), subscriptionRef, time.Now().UTC().Unix(), id,
	)
}

// RecordRewrite appends a row to the rewrite log.
func (s *SQLiteStore) RecordRewrite(ctx context.Context, entry RewriteLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rewrites (id, account_id, tone, input_length, output_length, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.AccountID, entry.Tone, entry.InputLength, entry.OutputLength, entry.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record rewrite: %w", err)
	}
	return nil
}

// CountRewrites returns the number of logged rewrites for an account.
func (s *SQLiteStore) CountRewrites(ctx context.Context, accountID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rewrites WHERE account_id = ?`, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rewrites: %w", err)
	}
	return n, nil
}

// CountByTier returns the number of accounts per tier.
func (s *SQLiteStore) CountByTier(ctx context.Context) (map[Tier]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tier, COUNT(*) FROM accounts GROUP BY tier`)
	if err != nil {
		return nil, fmt.Errorf("count by tier: %w", err)
	}
	defer rows.Close()

	counts := make(map[Tier]int)
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, fmt.Errorf("scan tier count: %w", err)
		}
		counts[Tier(tier)] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) exec1(ctx context.Context, op, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%s: account %q not found", op, id)
	}
	return nil
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*Account, error) {
	var a Account
	var tier string
	var lastUsageAt, createdAt, updatedAt int64

	err := s.Scan(
		&a.ID, &a.Email, &tier, &a.BonusRewrites, &a.ReferralCode, &a.ReferredBy,
		&a.StripeCustomerID, &a.SubscriptionRef, &a.DailyUsage, &lastUsageAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	a.Tier = Tier(tier)
	if lastUsageAt > 0 {
		a.LastUsageAt = time.Unix(lastUsageAt, 0).UTC()
	}
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	a.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &a, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed")
}
