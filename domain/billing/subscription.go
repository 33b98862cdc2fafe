// Package billing provides the subscription read model consumed by the
// quota engine. Writes to this model are owned by the external billing
// system; the engine only reads it.
package billing

import "time"

// SubscriptionStatus represents subscription state.
type SubscriptionStatus string

const (
	SubscriptionStatusNone   SubscriptionStatus = "none"
	SubscriptionStatusActive SubscriptionStatus = "active"
)

// SubscriptionView is the engine's read-only view of an account's paid
// plan (value type). It is a projection, never the billing source of truth.
type SubscriptionView struct {
	AccountID         string
	Status            SubscriptionStatus
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
	UpdatedAt         time.Time
}

// IsActive reports whether the account is on a paid plan. A pending
// cancellation does not demote the account before CurrentPeriodEnd passes;
// that transition is owned by the billing system.
func (v SubscriptionView) IsActive() bool {
	return v.Status == SubscriptionStatusActive
}

// IsCancelling reports whether the subscription is scheduled to lapse at
// period end. Display-only; never consulted for admission.
func (v SubscriptionView) IsCancelling() bool {
	return v.IsActive() && v.CancelAtPeriodEnd
}

// NotSubscribed returns the view used when no subscription row exists or
// the lookup failed. Failing toward the stricter, metered path keeps an
// ambiguous lookup from granting unlimited use.
func NotSubscribed(accountID string) SubscriptionView {
	return SubscriptionView{
		AccountID: accountID,
		Status:    SubscriptionStatusNone,
	}
}
