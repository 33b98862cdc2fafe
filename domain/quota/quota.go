// Package quota provides pure functions for free-tier admission decisions.
// All functions are deterministic with no side effects.
package quota

import (
	"time"

	"github.com/artpar/quotagate/domain/billing"
	"github.com/artpar/quotagate/domain/usage"
)

// UnlimitedLimit is the sentinel limit for subscribed accounts.
const UnlimitedLimit int64 = -1

// DefaultFreeLimit is the number of metered calls a free account gets per period.
const DefaultFreeLimit int64 = 5

// Standing classifies an account at decision time. It is recomputed on
// every check and never persisted as a state label.
type Standing int

const (
	StandingAllowed   Standing = iota // not subscribed, count < limit
	StandingExhausted                 // not subscribed, count >= limit
	StandingUnlimited                 // active subscription, counter untouched
)

// String returns the string representation of a standing.
func (s Standing) String() string {
	switch s {
	case StandingAllowed:
		return "allowed"
	case StandingExhausted:
		return "exhausted"
	case StandingUnlimited:
		return "unlimited"
	default:
		return "unknown"
	}
}

// Decision is the outcome of an admission check (derived value type,
// never persisted).
type Decision struct {
	AccountID         string
	Standing          Standing
	CanUse            bool
	CurrentCount      int64
	Limit             int64 // UnlimitedLimit for subscribed accounts
	IsSubscribed      bool
	PeriodEnd         time.Time
	DaysLeft          int
	CancelAtPeriodEnd bool

	// Degraded marks a decision made without counter state because the
	// usage store was unreachable. CanUse then reflects the failure
	// policy, not the account's actual standing.
	Degraded bool
}

// Unlimited reports whether the decision bypasses the counter entirely.
func (d Decision) Unlimited() bool {
	return d.Standing == StandingUnlimited
}

// Decide computes the admission decision for a fresh (already rolled over)
// usage record and a subscription view. This is a PURE function.
//
// An active subscription wins regardless of CancelAtPeriodEnd: a pending
// cancellation is display state until the billing system demotes the
// account at CurrentPeriodEnd.
func Decide(rec usage.Record, sub billing.SubscriptionView, limit int64, now time.Time) Decision {
	if sub.IsActive() {
		// DaysLeft counts toward the same end date the decision reports,
		// so a cancelling subscriber never sees a countdown against the
		// free-tier window.
		end := subscriptionPeriodEnd(rec, sub)
		return Decision{
			AccountID:         rec.AccountID,
			Standing:          StandingUnlimited,
			CanUse:            true,
			CurrentCount:      rec.Count,
			Limit:             UnlimitedLimit,
			IsSubscribed:      true,
			PeriodEnd:         end,
			DaysLeft:          daysUntil(end, now),
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		}
	}

	standing := StandingAllowed
	if rec.Count >= limit {
		standing = StandingExhausted
	}

	return Decision{
		AccountID:    rec.AccountID,
		Standing:     standing,
		CanUse:       standing == StandingAllowed,
		CurrentCount: rec.Count,
		Limit:        limit,
		PeriodEnd:    rec.PeriodEnd,
		DaysLeft:     rec.DaysLeft(now),
	}
}

// FailOpen returns the decision used when the usage store is unavailable
// and the deployment favors availability over strict enforcement. The
// counter state is unknown, so the decision carries the unlimited sentinel.
// This is a PURE function; the caller is responsible for logging the event.
func FailOpen(accountID string) Decision {
	return Decision{
		AccountID: accountID,
		Standing:  StandingAllowed,
		CanUse:    true,
		Limit:     UnlimitedLimit,
		Degraded:  true,
	}
}

// FailClosed returns the denying decision for store failures in
// higher-stakes deployments.
func FailClosed(accountID string, limit int64) Decision {
	return Decision{
		AccountID: accountID,
		Standing:  StandingExhausted,
		CanUse:    false,
		Limit:     limit,
		Degraded:  true,
	}
}

// daysUntil returns the whole days remaining until end, a partial day
// rounding up. Never negative. Same rounding as usage.Record.DaysLeft.
func daysUntil(end, now time.Time) int {
	if !end.After(now) {
		return 0
	}
	remaining := end.Sub(now)
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// subscriptionPeriodEnd prefers the billing period end when the provider
// reported one; the free-tier window end is meaningless for paid accounts
// but better than a zero time.
func subscriptionPeriodEnd(rec usage.Record, sub billing.SubscriptionView) time.Time {
	if sub.CurrentPeriodEnd != nil {
		return *sub.CurrentPeriodEnd
	}
	return rec.PeriodEnd
}
