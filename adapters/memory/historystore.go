package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/artpar/quotagate/domain/usage"
	"github.com/artpar/quotagate/ports"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = ports.ErrNotFound

// UsageHistoryStore is an in-memory ports.UsageHistoryStore.
type UsageHistoryStore struct {
	mu      sync.Mutex
	entries map[string][]usage.Entry // accountID -> append order
	failing bool
}

// NewUsageHistoryStore creates an empty in-memory history store.
func NewUsageHistoryStore() *UsageHistoryStore {
	return &UsageHistoryStore{entries: make(map[string][]usage.Entry)}
}

// Append stores one audit entry.
func (s *UsageHistoryStore) Append(_ context.Context, e usage.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing {
		return errors.New("history store unavailable")
	}
	s.entries[e.AccountID] = append(s.entries[e.AccountID], e)
	return nil
}

// ListRecent returns the newest entries for an account, most recent first.
func (s *UsageHistoryStore) ListRecent(_ context.Context, accountID string, limit int) ([]usage.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	all := s.entries[accountID]
	n := len(all)
	if limit > n {
		limit = n
	}

	out := make([]usage.Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// SetFailing makes subsequent appends fail (for testing the best-effort
// history contract).
func (s *UsageHistoryStore) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

// Count returns the total number of entries for an account (for testing).
func (s *UsageHistoryStore) Count(accountID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries[accountID])
}

// Ensure interface compliance.
var _ ports.UsageHistoryStore = (*UsageHistoryStore)(nil)
