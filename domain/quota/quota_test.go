package quota

import (
	"testing"
	"time"

	"github.com/artpar/quotagate/domain/billing"
	"github.com/artpar/quotagate/domain/usage"
)

var t0 = time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

func freshRecord(count int64) usage.Record {
	r := usage.NewRecord("acct-1", t0, usage.DefaultPeriod)
	r.Count = count
	return r
}

func TestDecide_Allowed(t *testing.T) {
	d := Decide(freshRecord(0), billing.NotSubscribed("acct-1"), 5, t0)

	if !d.CanUse {
		t.Errorf("expected CanUse=true for fresh free account")
	}
	if d.Standing != StandingAllowed {
		t.Errorf("expected StandingAllowed, got %v", d.Standing)
	}
	if d.CurrentCount != 0 {
		t.Errorf("expected CurrentCount=0, got %d", d.CurrentCount)
	}
	if d.Limit != 5 {
		t.Errorf("expected Limit=5, got %d", d.Limit)
	}
	if d.IsSubscribed {
		t.Errorf("expected IsSubscribed=false")
	}
	if d.DaysLeft != 30 {
		t.Errorf("expected DaysLeft=30, got %d", d.DaysLeft)
	}
}

func TestDecide_ExhaustedAtLimit(t *testing.T) {
	d := Decide(freshRecord(5), billing.NotSubscribed("acct-1"), 5, t0)

	if d.CanUse {
		t.Errorf("expected CanUse=false at limit")
	}
	if d.Standing != StandingExhausted {
		t.Errorf("expected StandingExhausted, got %v", d.Standing)
	}
	if d.CurrentCount != 5 {
		t.Errorf("expected CurrentCount=5, got %d", d.CurrentCount)
	}
}

func TestDecide_LastAllowedCall(t *testing.T) {
	d := Decide(freshRecord(4), billing.NotSubscribed("acct-1"), 5, t0)

	if !d.CanUse {
		t.Errorf("expected CanUse=true at count=4, limit=5")
	}
}

func TestDecide_CanUseIffUnderLimitOrSubscribed(t *testing.T) {
	// canUse == false iff !isSubscribed && count >= limit
	tests := []struct {
		name       string
		count      int64
		subscribed bool
		want       bool
	}{
		{"free under", 3, false, true},
		{"free at limit", 5, false, false},
		{"free over limit", 9, false, false},
		{"paid under", 3, true, true},
		{"paid at limit", 5, true, true},
		{"paid far over limit", 1000, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := billing.NotSubscribed("acct-1")
			if tt.subscribed {
				sub.Status = billing.SubscriptionStatusActive
			}
			d := Decide(freshRecord(tt.count), sub, 5, t0)
			if d.CanUse != tt.want {
				t.Errorf("CanUse = %v, want %v", d.CanUse, tt.want)
			}
		})
	}
}

func TestDecide_Unlimited(t *testing.T) {
	end := t0.AddDate(0, 1, 0)
	sub := billing.SubscriptionView{
		AccountID:        "acct-1",
		Status:           billing.SubscriptionStatusActive,
		CurrentPeriodEnd: &end,
	}

	d := Decide(freshRecord(7), sub, 5, t0)

	if !d.CanUse {
		t.Errorf("expected CanUse=true for subscribed account over nominal limit")
	}
	if d.Standing != StandingUnlimited {
		t.Errorf("expected StandingUnlimited, got %v", d.Standing)
	}
	if !d.Unlimited() {
		t.Errorf("expected Unlimited()=true")
	}
	if d.Limit != UnlimitedLimit {
		t.Errorf("expected unlimited sentinel, got %d", d.Limit)
	}
	if !d.IsSubscribed {
		t.Errorf("expected IsSubscribed=true")
	}
	if !d.PeriodEnd.Equal(end) {
		t.Errorf("expected PeriodEnd from billing view, got %v", d.PeriodEnd)
	}
}

func TestDecide_PendingCancellationStaysUnlimited(t *testing.T) {
	end := t0.AddDate(0, 1, 0)
	sub := billing.SubscriptionView{
		AccountID:         "acct-1",
		Status:            billing.SubscriptionStatusActive,
		CancelAtPeriodEnd: true,
		CurrentPeriodEnd:  &end,
	}

	// Any time before CurrentPeriodEnd the account is still unlimited.
	for _, now := range []time.Time{t0, t0.Add(12 * time.Hour), end.Add(-time.Second)} {
		d := Decide(freshRecord(20), sub, 5, now)
		if d.Standing != StandingUnlimited || !d.CanUse {
			t.Errorf("at %v: expected unlimited standing, got %v canUse=%v", now, d.Standing, d.CanUse)
		}
		if !d.CancelAtPeriodEnd {
			t.Errorf("expected CancelAtPeriodEnd carried into decision")
		}
	}
}

func TestDecide_UnlimitedDaysLeftTracksBillingPeriod(t *testing.T) {
	// The record's free-tier window runs 30 days, but the subscription
	// ends in 10. DaysLeft must count toward the date the decision
	// reports, not the free-tier window.
	end := t0.Add(10 * 24 * time.Hour)
	sub := billing.SubscriptionView{
		AccountID:         "acct-1",
		Status:            billing.SubscriptionStatusActive,
		CancelAtPeriodEnd: true,
		CurrentPeriodEnd:  &end,
	}

	d := Decide(freshRecord(0), sub, 5, t0)

	if !d.PeriodEnd.Equal(end) {
		t.Fatalf("period end = %v, want billing end %v", d.PeriodEnd, end)
	}
	if d.DaysLeft != 10 {
		t.Errorf("days left = %d, want 10 (counted to the billing end)", d.DaysLeft)
	}

	// Partial days round up, same as the free-tier computation.
	d = Decide(freshRecord(0), sub, 5, t0.Add(12*time.Hour))
	if d.DaysLeft != 10 {
		t.Errorf("days left after half a day = %d, want 10", d.DaysLeft)
	}
}

func TestDecide_SubscriptionWithoutPeriodEndFallsBackToRecord(t *testing.T) {
	sub := billing.SubscriptionView{AccountID: "acct-1", Status: billing.SubscriptionStatusActive}
	rec := freshRecord(0)

	d := Decide(rec, sub, 5, t0)

	if !d.PeriodEnd.Equal(rec.PeriodEnd) {
		t.Errorf("expected fallback to record period end, got %v", d.PeriodEnd)
	}
}

func TestFailOpen(t *testing.T) {
	d := FailOpen("acct-1")

	if !d.CanUse {
		t.Errorf("fail-open decision must admit")
	}
	if d.Limit != UnlimitedLimit {
		t.Errorf("fail-open decision carries the unlimited sentinel, got %d", d.Limit)
	}
	if d.IsSubscribed {
		t.Errorf("fail-open must not pretend the account is subscribed")
	}
	if !d.Degraded {
		t.Errorf("fail-open decision must be marked degraded")
	}
}

func TestFailClosed(t *testing.T) {
	d := FailClosed("acct-1", 5)

	if d.CanUse {
		t.Errorf("fail-closed decision must deny")
	}
	if d.Standing != StandingExhausted {
		t.Errorf("expected StandingExhausted, got %v", d.Standing)
	}
	if !d.Degraded {
		t.Errorf("fail-closed decision must be marked degraded")
	}
}

func TestStanding_String(t *testing.T) {
	tests := []struct {
		standing Standing
		want     string
	}{
		{StandingAllowed, "allowed"},
		{StandingExhausted, "exhausted"},
		{StandingUnlimited, "unlimited"},
		{Standing(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.standing.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
