package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/artpar/quotagate/adapters/metrics"
	"github.com/artpar/quotagate/domain/quota"
	"github.com/artpar/quotagate/ports"
)

// ErrQuotaExhausted is returned by Execute when the account's free limit
// is reached and no subscription lifts it.
var ErrQuotaExhausted = errors.New("free limit reached")

// ErrQuotaUnavailable is returned by Execute when a fail-closed store
// outage denies the call. The account may well have quota left; callers
// should retry rather than show an exhaustion message.
var ErrQuotaUnavailable = errors.New("usage data unavailable")

// Gate wraps a protected operation with admission control: check quota,
// run the operation, record consumption. It holds no lock across the
// operation; counter integrity comes from the store's conditional
// increment, not from serializing callers.
type Gate struct {
	quotas  *QuotaService
	clock   ports.Clock
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewGate creates an execution gate. Pass a nil metrics collector to
// disable instrumentation.
func NewGate(quotas *QuotaService, clock ports.Clock, logger zerolog.Logger, collector *metrics.Collector) *Gate {
	return &Gate{
		quotas:  quotas,
		clock:   clock,
		logger:  logger,
		metrics: collector,
	}
}

// Outcome carries what Execute learned alongside the operation's value.
// Decision is the pre-operation admission decision, so handlers can
// project status for the caller without a second store round trip.
type Outcome[T any] struct {
	Value    T
	Decision quota.Decision

	// RaceLost is set when the operation ran but the increment found the
	// counter already at the limit. Non-fatal: the operation's result is
	// still returned and the counter held at the limit.
	RaceLost bool

	// NewCount is the post-consumption counter value for metered
	// accounts. Unlimited accounts never consume, so it stays zero.
	NewCount int64
}

// Execute runs op under quota control:
//
//  1. Decide. A denied account never reaches op.
//  2. Run op. An op failure is surfaced unchanged and consumes nothing.
//  3. Record consumption, unless the account is unlimited; subscribed
//     accounts never touch the counter.
//
// Execute is a function rather than a Gate method because methods cannot
// take type parameters.
func Execute[T any](ctx context.Context, g *Gate, accountID, featureType string, op func(context.Context) (T, error)) (Outcome[T], error) {
	out := Outcome[T]{}

	out.Decision = g.quotas.Decide(ctx, accountID)
	if !out.Decision.CanUse {
		if g.metrics != nil {
			g.metrics.Denied.WithLabelValues(featureType).Inc()
		}
		g.logger.Debug().
			Str("account_id", accountID).
			Str("feature", featureType).
			Int64("count", out.Decision.CurrentCount).
			Msg("operation denied")
		if out.Decision.Degraded {
			return out, ErrQuotaUnavailable
		}
		return out, ErrQuotaExhausted
	}
	if g.metrics != nil {
		g.metrics.Admitted.WithLabelValues(featureType, out.Decision.Standing.String()).Inc()
	}

	started := g.clock.Now()
	value, err := op(ctx)
	elapsed := g.clock.Now().Sub(started)

	if err != nil {
		if g.metrics != nil {
			g.metrics.OpDuration.WithLabelValues(featureType, "error").Observe(elapsed.Seconds())
			g.metrics.OpFailures.WithLabelValues(featureType).Inc()
		}
		// Failed work costs nothing; the error passes through unchanged.
		return out, err
	}
	if g.metrics != nil {
		g.metrics.OpDuration.WithLabelValues(featureType, "success").Observe(elapsed.Seconds())
	}
	out.Value = value

	if out.Decision.Unlimited() {
		return out, nil
	}

	ok, newCount, consumeErr := g.quotas.Consume(ctx, accountID, featureType)
	out.NewCount = newCount
	switch {
	case consumeErr != nil:
		// The operation already succeeded; losing the consumption write
		// must not retroactively fail it.
		g.logger.Warn().Err(consumeErr).
			Str("account_id", accountID).
			Str("feature", featureType).
			Msg("consumption not recorded after successful operation")
	case !ok:
		out.RaceLost = true
		if g.metrics != nil {
			g.metrics.RaceLost.Inc()
		}
		g.logger.Warn().
			Str("account_id", accountID).
			Str("feature", featureType).
			Int64("count", newCount).
			Msg("increment lost the race to the limit, counter held")
	}

	return out, nil
}
