// Package memory provides in-memory implementations of storage ports,
// used in tests and single-process deployments that can tolerate losing
// state on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/artpar/quotagate/domain/usage"
	"github.com/artpar/quotagate/ports"
)

// UsageRecordStore is a mutex-guarded in-memory ports.UsageRecordStore.
// The mutex plays the role the conditional UPDATE plays in the SQLite
// store: staleness check plus reset, and limit check plus increment, are
// each one critical section.
type UsageRecordStore struct {
	mu      sync.Mutex
	records map[string]usage.Record
	failing error
}

// NewUsageRecordStore creates an empty in-memory usage record store.
func NewUsageRecordStore() *UsageRecordStore {
	return &UsageRecordStore{records: make(map[string]usage.Record)}
}

// SetFailing makes every subsequent call return err; pass nil to recover.
// Used to exercise failure-policy paths in service tests.
func (s *UsageRecordStore) SetFailing(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = err
}

// GetOrCreate returns the account's record, creating it on first touch.
func (s *UsageRecordStore) GetOrCreate(_ context.Context, accountID string, now time.Time, periodLen time.Duration) (usage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing != nil {
		return usage.Record{}, s.failing
	}
	if rec, ok := s.records[accountID]; ok {
		return rec, nil
	}
	rec := usage.NewRecord(accountID, now, periodLen)
	s.records[accountID] = rec
	return rec, nil
}

// CheckAndReset returns the current record, rolling it over if stale.
// rolledOver reports whether this call performed the rollover.
func (s *UsageRecordStore) CheckAndReset(_ context.Context, accountID string, now time.Time, periodLen time.Duration) (usage.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing != nil {
		return usage.Record{}, false, s.failing
	}
	rec, ok := s.records[accountID]
	if !ok {
		rec = usage.NewRecord(accountID, now, periodLen)
		s.records[accountID] = rec
		return rec, false, nil
	}
	if rec.Stale(now) {
		rec = usage.Rollover(rec, now, periodLen)
		s.records[accountID] = rec
		return rec, true, nil
	}
	return rec, false, nil
}

// TryIncrement increments the counter iff count < limit (unconditionally
// for a negative limit).
func (s *UsageRecordStore) TryIncrement(_ context.Context, accountID string, limit int64, now time.Time) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing != nil {
		return false, 0, s.failing
	}
	rec, ok := s.records[accountID]
	if !ok {
		return false, 0, ErrNotFound
	}
	if limit >= 0 && rec.Count >= limit {
		return false, rec.Count, nil
	}
	rec.Count++
	rec.UpdatedAt = now
	s.records[accountID] = rec
	return true, rec.Count, nil
}

// Len returns the number of tracked accounts (for testing).
func (s *UsageRecordStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Ensure interface compliance.
var _ ports.UsageRecordStore = (*UsageRecordStore)(nil)
