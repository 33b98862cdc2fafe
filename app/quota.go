package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/artpar/quotagate/adapters/metrics"
	"github.com/artpar/quotagate/domain/quota"
	"github.com/artpar/quotagate/domain/usage"
	"github.com/artpar/quotagate/ports"
)

// Limits is the hot-reloadable enforcement snapshot. A config reload swaps
// the whole value atomically, so a decision never mixes an old limit with
// a new period length.
type Limits struct {
	FreeLimit    int64
	PeriodLength time.Duration

	// FailOpen selects the failure policy when the usage store is
	// unreachable: true admits (availability over enforcement), false
	// denies. True by default; higher-stakes deployments flip it.
	FailOpen bool
}

// DefaultLimits returns the stock freemium configuration.
func DefaultLimits() Limits {
	return Limits{
		FreeLimit:    quota.DefaultFreeLimit,
		PeriodLength: usage.DefaultPeriod,
		FailOpen:     true,
	}
}

// QuotaService decides admission and records consumption. It owns no
// state of its own beyond the limits snapshot; counter integrity lives in
// the store's atomic operations, decision logic in domain/quota.
type QuotaService struct {
	records ports.UsageRecordStore
	history ports.UsageHistoryStore
	subs    *SubscriptionService
	clock   ports.Clock
	idGen   ports.IDGenerator
	logger  zerolog.Logger
	metrics *metrics.Collector

	limits atomic.Pointer[Limits]

	// group collapses concurrent first-touch checks for the same account
	// into one store round trip. Entries are dropped as soon as the
	// shared call returns, so the group never grows with the account
	// population.
	group singleflight.Group
}

// NewQuotaService creates a quota service with default limits. Pass a nil
// metrics collector to disable instrumentation.
func NewQuotaService(
	records ports.UsageRecordStore,
	history ports.UsageHistoryStore,
	subs *SubscriptionService,
	clock ports.Clock,
	idGen ports.IDGenerator,
	logger zerolog.Logger,
	collector *metrics.Collector,
) *QuotaService {
	s := &QuotaService{
		records: records,
		history: history,
		subs:    subs,
		clock:   clock,
		idGen:   idGen,
		logger:  logger,
		metrics: collector,
	}
	limits := DefaultLimits()
	s.limits.Store(&limits)
	return s
}

// Limits returns the current enforcement snapshot.
func (s *QuotaService) Limits() Limits {
	return *s.limits.Load()
}

// SetLimits swaps the enforcement snapshot. Called by the config holder on
// reload; in-flight decisions keep the snapshot they loaded.
func (s *QuotaService) SetLimits(l Limits) {
	if l.FreeLimit == 0 {
		l.FreeLimit = quota.DefaultFreeLimit
	}
	if l.PeriodLength <= 0 {
		l.PeriodLength = usage.DefaultPeriod
	}
	s.limits.Store(&l)
}

// Decide computes the admission decision for one account: roll the usage
// period over if stale, look up the subscription, and classify. It never
// returns an error; a store failure resolves to the configured failure
// policy so callers always get an actionable decision.
func (s *QuotaService) Decide(ctx context.Context, accountID string) quota.Decision {
	limits := s.Limits()
	now := s.clock.Now()

	rec, err := s.checkAndReset(ctx, accountID, now, limits.PeriodLength)
	if err != nil {
		return s.decideOnStoreFailure(accountID, limits, err)
	}

	sub := s.subs.GetView(ctx, accountID)
	return quota.Decide(rec, sub, limits.FreeLimit, now)
}

// checkAndReset funnels concurrent checks for one account through a
// single flight. Without this, a burst of first requests from a brand-new
// account would race GetOrCreate; the store tolerates that, but one round
// trip is cheaper than N.
func (s *QuotaService) checkAndReset(ctx context.Context, accountID string, now time.Time, periodLen time.Duration) (usage.Record, error) {
	v, err, _ := s.group.Do(accountID, func() (any, error) {
		rec, rolledOver, err := s.records.CheckAndReset(ctx, accountID, now, periodLen)
		if err != nil {
			return usage.Record{}, err
		}
		if rolledOver {
			s.logger.Info().
				Str("account_id", accountID).
				Time("period_start", rec.PeriodStart).
				Time("period_end", rec.PeriodEnd).
				Msg("usage period rolled over")
			if s.metrics != nil {
				s.metrics.Rollovers.Inc()
			}
		}
		return rec, nil
	})
	if err != nil {
		return usage.Record{}, err
	}
	return v.(usage.Record), nil
}

func (s *QuotaService) decideOnStoreFailure(accountID string, limits Limits, err error) quota.Decision {
	if s.metrics != nil {
		s.metrics.StoreFailures.WithLabelValues("check_and_reset").Inc()
	}

	if limits.FailOpen {
		s.logger.Warn().Err(err).
			Str("account_id", accountID).
			Msg("usage store unavailable, admitting (fail-open)")
		if s.metrics != nil {
			s.metrics.FailOpenAdmissions.Inc()
		}
		return quota.FailOpen(accountID)
	}

	s.logger.Warn().Err(err).
		Str("account_id", accountID).
		Msg("usage store unavailable, denying (fail-closed)")
	return quota.FailClosed(accountID, limits.FreeLimit)
}

// Consume records one completed metered operation: a conditional increment
// against the counter plus an append-only audit entry. The two writes are
// independent side effects; a history failure never rolls back the
// increment and vice versa.
//
// ok=false with a nil error means the increment lost a race to the limit
// after the operation already ran. The caller logs it and moves on; the
// counter held at the limit, which is the invariant that matters.
func (s *QuotaService) Consume(ctx context.Context, accountID, featureType string) (ok bool, newCount int64, err error) {
	limits := s.Limits()
	now := s.clock.Now()

	ok, newCount, err = s.records.TryIncrement(ctx, accountID, limits.FreeLimit, now)
	if err != nil {
		if s.metrics != nil {
			s.metrics.StoreFailures.WithLabelValues("try_increment").Inc()
		}
		s.logger.Error().Err(err).
			Str("account_id", accountID).
			Str("feature", featureType).
			Msg("usage increment failed")
		return false, 0, err
	}

	entry := usage.NewEntry(s.idGen.New(), accountID, featureType, now)
	if histErr := s.history.Append(ctx, entry); histErr != nil {
		s.logger.Warn().Err(histErr).
			Str("account_id", accountID).
			Str("feature", featureType).
			Msg("usage history append failed")
	}

	return ok, newCount, nil
}

// History returns the account's most recent audit entries, newest first.
func (s *QuotaService) History(ctx context.Context, accountID string, limit int) ([]usage.Entry, error) {
	return s.history.ListRecent(ctx, accountID, limit)
}
