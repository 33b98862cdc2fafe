// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/quotagate/domain/billing"
	"github.com/artpar/quotagate/domain/usage"
)

// ErrNotFound is returned by stores when no row exists for the key.
// Adapters wrap or alias this sentinel so callers can distinguish
// absence from infrastructure failure with errors.Is.
var ErrNotFound = errors.New("not found")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// UsageRecordStore persists per-account consumption counters. It is the
// only component allowed to mutate consumption state; callers never do
// read-modify-write against it.
type UsageRecordStore interface {
	// GetOrCreate returns the account's record, atomically creating the
	// zero-consumption record on first touch. Concurrent first-time
	// callers for the same account must not produce duplicates.
	GetOrCreate(ctx context.Context, accountID string, now time.Time, periodLen time.Duration) (usage.Record, error)

	// CheckAndReset returns the current record, rolling it over first if
	// its period has elapsed. The staleness check and the reset must be
	// one atomic server-side operation so that exactly one rollover
	// happens per boundary crossing regardless of concurrent callers.
	// rolledOver reports whether this call performed the rollover.
	CheckAndReset(ctx context.Context, accountID string, now time.Time, periodLen time.Duration) (rec usage.Record, rolledOver bool, err error)

	// TryIncrement adds one to the counter only if count < limit, as a
	// single atomic statement, and reports whether it won. A negative
	// limit means unlimited and increments unconditionally.
	TryIncrement(ctx context.Context, accountID string, limit int64, now time.Time) (ok bool, newCount int64, err error)
}

// UsageHistoryStore persists the append-only audit trail. Appends are
// commutative; entries are never mutated or deleted here.
type UsageHistoryStore interface {
	// Append stores one audit entry.
	Append(ctx context.Context, e usage.Entry) error

	// ListRecent returns the newest entries for an account, most recent
	// first. Read-only, off the decision path.
	ListRecent(ctx context.Context, accountID string, limit int) ([]usage.Entry, error)
}

// SubscriptionStore persists the subscription read model. The billing
// system owns the writes (applied through the webhook service); the quota
// engine only reads.
type SubscriptionStore interface {
	// GetByAccount retrieves the subscription view for an account.
	// Returns the store's not-found sentinel when no row exists.
	GetByAccount(ctx context.Context, accountID string) (billing.SubscriptionView, error)

	// Upsert creates or replaces the view for an account.
	Upsert(ctx context.Context, view billing.SubscriptionView) error

	// SetCancelAtPeriodEnd flips only the pending-cancellation flag,
	// leaving status and period end untouched. Idempotent.
	SetCancelAtPeriodEnd(ctx context.Context, accountID string, cancel bool, at time.Time) error
}

// -----------------------------------------------------------------------------
// External Service Ports
// -----------------------------------------------------------------------------

// Upstream invokes the protected business operation on behalf of the HTTP
// surface. The gate itself is generic over any op; this port exists so the
// server can meter a configured remote call.
type Upstream interface {
	// Invoke runs the named feature against the upstream service and
	// returns its raw response body.
	Invoke(ctx context.Context, accountID, featureType string, payload []byte) ([]byte, error)

	// HealthCheck verifies the upstream is reachable.
	HealthCheck(ctx context.Context) error
}
