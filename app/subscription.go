// Package app contains application services: the orchestration layer
// between the HTTP surface and the domain. All business logic is pure and
// lives in domain/; I/O happens at the edges via injected stores.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/quotagate/adapters/metrics"
	"github.com/artpar/quotagate/domain/billing"
	"github.com/artpar/quotagate/ports"
)

// DefaultSubscriptionCacheTTL bounds how stale a cached subscription view
// may be. Short on purpose: a webhook normally invalidates the entry, the
// TTL only covers missed invalidations.
const DefaultSubscriptionCacheTTL = 30 * time.Second

// cachePruneThreshold is the map size past which expired entries are swept
// on insert.
const cachePruneThreshold = 1024

type cachedView struct {
	view      billing.SubscriptionView
	fetchedAt time.Time
}

// SubscriptionService answers "is this account on a paid plan" for the
// quota engine. Lookups fail toward not-subscribed: an error here must
// never grant unlimited use.
type SubscriptionService struct {
	store   ports.SubscriptionStore
	clock   ports.Clock
	logger  zerolog.Logger
	metrics *metrics.Collector

	ttl   time.Duration
	mu    sync.Mutex
	cache map[string]cachedView
}

// NewSubscriptionService creates a subscription service with the default
// cache TTL. Pass a nil metrics collector to disable instrumentation.
func NewSubscriptionService(
	store ports.SubscriptionStore,
	clock ports.Clock,
	logger zerolog.Logger,
	collector *metrics.Collector,
) *SubscriptionService {
	return &SubscriptionService{
		store:   store,
		clock:   clock,
		logger:  logger,
		metrics: collector,
		ttl:     DefaultSubscriptionCacheTTL,
		cache:   make(map[string]cachedView),
	}
}

// SetCacheTTL overrides the cache TTL; zero disables caching entirely.
func (s *SubscriptionService) SetCacheTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttl = ttl
}

// GetView returns the account's subscription view. It never fails: no row
// and lookup errors both collapse to the not-subscribed view, so an outage
// in the billing store degrades paid accounts to metered rather than
// granting free accounts unlimited use.
func (s *SubscriptionService) GetView(ctx context.Context, accountID string) billing.SubscriptionView {
	now := s.clock.Now()

	if view, ok := s.cached(accountID, now); ok {
		if s.metrics != nil {
			s.metrics.SubscriptionCacheHits.Inc()
		}
		return view
	}

	view, err := s.store.GetByAccount(ctx, accountID)
	switch {
	case err == nil:
		// ok
	case errors.Is(err, ports.ErrNotFound):
		view = billing.NotSubscribed(accountID)
	default:
		s.logger.Warn().Err(err).
			Str("account_id", accountID).
			Msg("subscription lookup failed, treating as not subscribed")
		if s.metrics != nil {
			s.metrics.SubscriptionLookupFailures.Inc()
		}
		// Do not cache a failure result.
		return billing.NotSubscribed(accountID)
	}

	s.put(accountID, view, now)
	return view
}

// Resume clears a pending cancellation. Idempotent: resuming a
// subscription that is not scheduled to cancel is a no-op. Returns
// ports.ErrNotFound (wrapped) when the account has no subscription row.
func (s *SubscriptionService) Resume(ctx context.Context, accountID string) error {
	now := s.clock.Now()
	if err := s.store.SetCancelAtPeriodEnd(ctx, accountID, false, now); err != nil {
		return err
	}

	s.invalidate(accountID)
	s.logger.Info().
		Str("account_id", accountID).
		Msg("subscription resumed")
	return nil
}

// Apply replaces the stored view with what the billing system reported and
// invalidates the cache entry. Webhook delivery is at-least-once, so the
// upsert must be idempotent; the store's ON CONFLICT semantics give that.
func (s *SubscriptionService) Apply(ctx context.Context, view billing.SubscriptionView) error {
	if view.AccountID == "" {
		return errors.New("subscription view missing account id")
	}
	if view.UpdatedAt.IsZero() {
		view.UpdatedAt = s.clock.Now()
	}

	if err := s.store.Upsert(ctx, view); err != nil {
		return err
	}
	s.invalidate(view.AccountID)
	return nil
}

func (s *SubscriptionService) cached(accountID string, now time.Time) (billing.SubscriptionView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ttl <= 0 {
		return billing.SubscriptionView{}, false
	}
	entry, ok := s.cache[accountID]
	if !ok || now.Sub(entry.fetchedAt) >= s.ttl {
		return billing.SubscriptionView{}, false
	}
	return entry.view, true
}

func (s *SubscriptionService) put(accountID string, view billing.SubscriptionView, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ttl <= 0 {
		return
	}
	if len(s.cache) >= cachePruneThreshold {
		for id, entry := range s.cache {
			if now.Sub(entry.fetchedAt) >= s.ttl {
				delete(s.cache, id)
			}
		}
	}
	s.cache[accountID] = cachedView{view: view, fetchedAt: now}
}

func (s *SubscriptionService) invalidate(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, accountID)
}
