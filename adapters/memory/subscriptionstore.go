package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/artpar/quotagate/domain/billing"
	"github.com/artpar/quotagate/ports"
)

// SubscriptionStore is an in-memory ports.SubscriptionStore.
type SubscriptionStore struct {
	mu      sync.Mutex
	views   map[string]billing.SubscriptionView
	failing bool
}

// NewSubscriptionStore creates an empty in-memory subscription store.
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{views: make(map[string]billing.SubscriptionView)}
}

// GetByAccount retrieves the subscription view for an account.
func (s *SubscriptionStore) GetByAccount(_ context.Context, accountID string) (billing.SubscriptionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing {
		return billing.SubscriptionView{}, errors.New("subscription store unavailable")
	}
	view, ok := s.views[accountID]
	if !ok {
		return billing.SubscriptionView{}, ErrNotFound
	}
	return view, nil
}

// Upsert creates or replaces the view for an account.
func (s *SubscriptionStore) Upsert(_ context.Context, view billing.SubscriptionView) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing {
		return errors.New("subscription store unavailable")
	}
	s.views[view.AccountID] = view
	return nil
}

// SetCancelAtPeriodEnd flips only the pending-cancellation flag.
func (s *SubscriptionStore) SetCancelAtPeriodEnd(_ context.Context, accountID string, cancel bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing {
		return errors.New("subscription store unavailable")
	}
	view, ok := s.views[accountID]
	if !ok {
		return ErrNotFound
	}
	view.CancelAtPeriodEnd = cancel
	view.UpdatedAt = at
	s.views[accountID] = view
	return nil
}

// SetFailing makes subsequent calls fail (for testing fail-closed lookups).
func (s *SubscriptionStore) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

// Ensure interface compliance.
var _ ports.SubscriptionStore = (*SubscriptionStore)(nil)
