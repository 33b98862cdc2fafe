// Package usage provides usage record and history value types plus the
// pure period-rollover functions. All functions are pure - no side effects.
package usage

import "time"

// DefaultPeriod is the length of one free-tier accounting period.
const DefaultPeriod = 30 * 24 * time.Hour

// Record tracks metered consumption for one account over one period
// (immutable value type; mutation happens only in the stores).
type Record struct {
	AccountID   string
	Count       int64
	PeriodStart time.Time
	PeriodEnd   time.Time // exclusive
	UpdatedAt   time.Time
}

// Valid reports whether the record satisfies its structural invariants.
func (r Record) Valid() bool {
	return r.AccountID != "" && r.Count >= 0 && r.PeriodEnd.After(r.PeriodStart)
}

// Stale reports whether the record's period has elapsed at the given
// instant. A stale record must be rolled over before it is trusted for
// an admission decision.
func (r Record) Stale(now time.Time) bool {
	return !now.Before(r.PeriodEnd)
}

// NewRecord returns the zero-consumption record for an account whose
// period starts now.
func NewRecord(accountID string, now time.Time, periodLen time.Duration) Record {
	if periodLen <= 0 {
		periodLen = DefaultPeriod
	}
	return Record{
		AccountID:   accountID,
		Count:       0,
		PeriodStart: now,
		PeriodEnd:   now.Add(periodLen),
		UpdatedAt:   now,
	}
}

// Rollover returns the record's successor period anchored at the rollover
// instant: the count resets and the window shifts forward by one period
// length from now. The input record is not modified.
func Rollover(r Record, now time.Time, periodLen time.Duration) Record {
	if periodLen <= 0 {
		periodLen = DefaultPeriod
	}
	return Record{
		AccountID:   r.AccountID,
		Count:       0,
		PeriodStart: now,
		PeriodEnd:   now.Add(periodLen),
		UpdatedAt:   now,
	}
}

// DaysLeft returns the whole days remaining until the period ends,
// rounded up so a partial day still counts. Never negative.
func (r Record) DaysLeft(now time.Time) int {
	if r.Stale(now) {
		return 0
	}
	remaining := r.PeriodEnd.Sub(now)
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// Entry is one append-only audit trail row. Entries are never mutated or
// deleted by this subsystem and are never read on the decision path.
type Entry struct {
	ID          string
	AccountID   string
	FeatureType string
	Timestamp   time.Time
}

// NewEntry creates an audit entry for a completed metered operation.
func NewEntry(id, accountID, featureType string, at time.Time) Entry {
	return Entry{
		ID:          id,
		AccountID:   accountID,
		FeatureType: featureType,
		Timestamp:   at,
	}
}
