package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/artpar/quotagate/domain/usage"
	"github.com/artpar/quotagate/ports"
)

// UsageHistoryStore implements ports.UsageHistoryStore using SQLite.
// Rows are append-only; there is no update or delete path.
type UsageHistoryStore struct {
	db *DB
}

// NewUsageHistoryStore creates a new SQLite usage history store.
func NewUsageHistoryStore(db *DB) *UsageHistoryStore {
	return &UsageHistoryStore{db: db}
}

// Append stores one audit entry.
func (s *UsageHistoryStore) Append(ctx context.Context, e usage.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_history (id, account_id, feature_type, created_at)
		VALUES (?, ?, ?, ?)
	`, e.ID, e.AccountID, e.FeatureType, e.Timestamp.UnixNano())
	if isUniqueConstraintError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("append usage history: %w", err)
	}
	return nil
}

// ListRecent returns the newest entries for an account, most recent first.
func (s *UsageHistoryStore) ListRecent(ctx context.Context, accountID string, limit int) ([]usage.Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, feature_type, created_at
		FROM usage_history
		WHERE account_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list usage history: %w", err)
	}
	defer rows.Close()

	var entries []usage.Entry
	for rows.Next() {
		var e usage.Entry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.AccountID, &e.FeatureType, &createdAt); err != nil {
			return nil, fmt.Errorf("scan usage history: %w", err)
		}
		e.Timestamp = time.Unix(0, createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage history: %w", err)
	}
	return entries, nil
}

// Ensure interface compliance.
var _ ports.UsageHistoryStore = (*UsageHistoryStore)(nil)
