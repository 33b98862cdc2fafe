package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/quotagate/domain/billing"
	"github.com/artpar/quotagate/ports"
)

// SubscriptionStore implements ports.SubscriptionStore using SQLite.
type SubscriptionStore struct {
	db *DB
}

// NewSubscriptionStore creates a new SQLite subscription store.
func NewSubscriptionStore(db *DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// GetByAccount retrieves the subscription view for an account.
func (s *SubscriptionStore) GetByAccount(ctx context.Context, accountID string) (billing.SubscriptionView, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT account_id, status, cancel_at_period_end, current_period_end, updated_at
		FROM subscriptions
		WHERE account_id = ?
	`, accountID)
	return scanSubscription(row)
}

// Upsert creates or replaces the subscription view for an account.
func (s *SubscriptionStore) Upsert(ctx context.Context, view billing.SubscriptionView) error {
	var periodEnd sql.NullInt64
	if view.CurrentPeriodEnd != nil {
		periodEnd = sql.NullInt64{Int64: view.CurrentPeriodEnd.UnixNano(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (account_id, status, cancel_at_period_end, current_period_end, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			status = excluded.status,
			cancel_at_period_end = excluded.cancel_at_period_end,
			current_period_end = excluded.current_period_end,
			updated_at = excluded.updated_at
	`, view.AccountID, string(view.Status), boolToInt(view.CancelAtPeriodEnd), periodEnd, view.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// SetCancelAtPeriodEnd flips only the pending-cancellation flag. Status
// and period end are untouched; repeating the call is a no-op.
func (s *SubscriptionStore) SetCancelAtPeriodEnd(ctx context.Context, accountID string, cancel bool, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET cancel_at_period_end = ?, updated_at = ?
		WHERE account_id = ?
	`, boolToInt(cancel), at.UnixNano(), accountID)
	if err != nil {
		return fmt.Errorf("set cancel_at_period_end: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set cancel_at_period_end: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSubscription(row *sql.Row) (billing.SubscriptionView, error) {
	var view billing.SubscriptionView
	var status string
	var cancelAtPeriodEnd int
	var periodEnd sql.NullInt64
	var updatedAt int64

	err := row.Scan(&view.AccountID, &status, &cancelAtPeriodEnd, &periodEnd, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.SubscriptionView{}, ErrNotFound
	}
	if err != nil {
		return billing.SubscriptionView{}, fmt.Errorf("get subscription: %w", err)
	}

	view.Status = billing.SubscriptionStatus(status)
	view.CancelAtPeriodEnd = cancelAtPeriodEnd == 1
	if periodEnd.Valid {
		t := time.Unix(0, periodEnd.Int64).UTC()
		view.CurrentPeriodEnd = &t
	}
	view.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return view, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure interface compliance.
var _ ports.SubscriptionStore = (*SubscriptionStore)(nil)
