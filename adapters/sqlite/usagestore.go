package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/quotagate/domain/usage"
	"github.com/artpar/quotagate/ports"
)

// UsageRecordStore implements ports.UsageRecordStore using SQLite.
// The rollover and conditional-increment statements are single UPDATEs so
// the check and the mutation cannot be interleaved by a concurrent caller.
type UsageRecordStore struct {
	db *DB
}

// NewUsageRecordStore creates a new SQLite usage record store.
func NewUsageRecordStore(db *DB) *UsageRecordStore {
	return &UsageRecordStore{db: db}
}

// GetOrCreate returns the account's record, creating the zero-consumption
// record on first touch. INSERT OR IGNORE gives unique-key semantics under
// concurrent first-time callers: exactly one insert wins, everyone reads
// the same row back.
func (s *UsageRecordStore) GetOrCreate(ctx context.Context, accountID string, now time.Time, periodLen time.Duration) (usage.Record, error) {
	fresh := usage.NewRecord(accountID, now, periodLen)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records (account_id, count, period_start, period_end, updated_at)
		VALUES (?, 0, ?, ?, ?)
		ON CONFLICT(account_id) DO NOTHING
	`, accountID, fresh.PeriodStart.UnixNano(), fresh.PeriodEnd.UnixNano(), fresh.UpdatedAt.UnixNano())
	if err != nil {
		return usage.Record{}, fmt.Errorf("create usage record: %w", err)
	}

	return s.get(ctx, accountID)
}

// CheckAndReset returns the current record, rolling it over first when the
// period has elapsed. The reset is one conditional UPDATE predicated on
// staleness: of M concurrent callers at a boundary, only the first to
// execute still sees period_end <= now, so exactly one reset happens per
// crossing and a later increment in the fresh period is never erased.
func (s *UsageRecordStore) CheckAndReset(ctx context.Context, accountID string, now time.Time, periodLen time.Duration) (usage.Record, bool, error) {
	if periodLen <= 0 {
		periodLen = usage.DefaultPeriod
	}

	// Lazy creation on first check.
	rec, err := s.GetOrCreate(ctx, accountID, now, periodLen)
	if err != nil {
		return usage.Record{}, false, err
	}
	if !rec.Stale(now) {
		return rec, false, nil
	}

	next := usage.Rollover(rec, now, periodLen)
	res, err := s.db.ExecContext(ctx, `
		UPDATE usage_records
		SET count = 0, period_start = ?, period_end = ?, updated_at = ?
		WHERE account_id = ? AND period_end <= ?
	`, next.PeriodStart.UnixNano(), next.PeriodEnd.UnixNano(), next.UpdatedAt.UnixNano(),
		accountID, now.UnixNano())
	if err != nil {
		return usage.Record{}, false, fmt.Errorf("reset usage record: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return usage.Record{}, false, fmt.Errorf("reset usage record: %w", err)
	}

	// Read back whichever reset won; a lost race still yields a coherent
	// fresh period.
	rec, err = s.get(ctx, accountID)
	return rec, rows == 1, err
}

// TryIncrement atomically increments the counter iff count < limit.
// The comparison lives inside the UPDATE's WHERE clause, so two callers
// racing at count=limit-1 serialize in the storage engine and exactly one
// observes the predicate as true. A negative limit increments
// unconditionally.
func (s *UsageRecordStore) TryIncrement(ctx context.Context, accountID string, limit int64, now time.Time) (bool, int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE usage_records
		SET count = count + 1, updated_at = ?
		WHERE account_id = ? AND (? < 0 OR count < ?)
	`, now.UnixNano(), accountID, limit, limit)
	if err != nil {
		return false, 0, fmt.Errorf("increment usage record: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("increment usage record: %w", err)
	}

	rec, err := s.get(ctx, accountID)
	if err != nil {
		return false, 0, err
	}
	return rows == 1, rec.Count, nil
}

func (s *UsageRecordStore) get(ctx context.Context, accountID string) (usage.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT account_id, count, period_start, period_end, updated_at
		FROM usage_records
		WHERE account_id = ?
	`, accountID)

	var rec usage.Record
	var periodStart, periodEnd, updatedAt int64
	err := row.Scan(&rec.AccountID, &rec.Count, &periodStart, &periodEnd, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return usage.Record{}, ErrNotFound
	}
	if err != nil {
		return usage.Record{}, fmt.Errorf("get usage record: %w", err)
	}

	rec.PeriodStart = time.Unix(0, periodStart).UTC()
	rec.PeriodEnd = time.Unix(0, periodEnd).UTC()
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return rec, nil
}

// Ensure interface compliance.
var _ ports.UsageRecordStore = (*UsageRecordStore)(nil)
