// Package status derives display-oriented quota summaries from admission
// decisions. Purely a read-side view, never authoritative; safe to
// recompute on every render.
package status

import (
	"fmt"
	"time"

	"github.com/artpar/quotagate/domain/quota"
)

// Severity is the display band for a quota summary.
type Severity string

const (
	SeverityOK      Severity = "ok"
	SeverityWarning Severity = "warning" // one call remaining, or degraded tracking
	SeverityError   Severity = "error"   // exhausted
)

// DisplayStatus is what the surrounding application renders (value type).
type DisplayStatus struct {
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Remaining int64     `json:"remaining"` // -1 when unlimited
	Unlimited bool      `json:"unlimited"`
	ResetsOn  time.Time `json:"resets_on"`
	DaysLeft  int       `json:"days_left"`
}

// Project renders a decision for display. This is a PURE function.
// Subscribed accounts never see "X of Y remaining" text.
func Project(d quota.Decision) DisplayStatus {
	// Degraded decisions carry no counter state: no remaining figure, no
	// reset date, and never the unlimited copy.
	if d.Degraded {
		if d.CanUse {
			return DisplayStatus{
				Message:   "Usage tracking is temporarily unavailable.",
				Severity:  SeverityWarning,
				Remaining: -1,
			}
		}
		return DisplayStatus{
			Message:  "Service is temporarily unavailable. Please try again shortly.",
			Severity: SeverityError,
		}
	}

	if d.Unlimited() || d.Limit == quota.UnlimitedLimit {
		msg := "Unlimited access"
		if d.CancelAtPeriodEnd {
			msg = fmt.Sprintf("Unlimited access until %s", d.PeriodEnd.Format("Jan 2, 2006"))
		}
		return DisplayStatus{
			Message:   msg,
			Severity:  SeverityOK,
			Remaining: -1,
			Unlimited: true,
			ResetsOn:  d.PeriodEnd,
			DaysLeft:  d.DaysLeft,
		}
	}

	remaining := d.Limit - d.CurrentCount
	if remaining < 0 {
		remaining = 0
	}

	switch {
	case remaining == 0:
		return DisplayStatus{
			Message:   fmt.Sprintf("Free limit reached. Resets in %s.", daysPhrase(d.DaysLeft)),
			Severity:  SeverityError,
			Remaining: 0,
			ResetsOn:  d.PeriodEnd,
			DaysLeft:  d.DaysLeft,
		}
	case remaining == 1:
		return DisplayStatus{
			Message:   fmt.Sprintf("1 of %d free uses left this period.", d.Limit),
			Severity:  SeverityWarning,
			Remaining: 1,
			ResetsOn:  d.PeriodEnd,
			DaysLeft:  d.DaysLeft,
		}
	default:
		return DisplayStatus{
			Message:   fmt.Sprintf("%d of %d free uses left this period.", remaining, d.Limit),
			Severity:  SeverityOK,
			Remaining: remaining,
			ResetsOn:  d.PeriodEnd,
			DaysLeft:  d.DaysLeft,
		}
	}
}

func daysPhrase(days int) string {
	if days <= 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
