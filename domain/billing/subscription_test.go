package billing

import (
	"testing"
	"time"
)

func TestSubscriptionView_IsActive(t *testing.T) {
	end := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		view SubscriptionView
		want bool
	}{
		{"active", SubscriptionView{Status: SubscriptionStatusActive}, true},
		{"active with pending cancel", SubscriptionView{Status: SubscriptionStatusActive, CancelAtPeriodEnd: true, CurrentPeriodEnd: &end}, true},
		{"none", SubscriptionView{Status: SubscriptionStatusNone}, false},
		{"zero value", SubscriptionView{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.view.IsActive(); got != tt.want {
				t.Errorf("IsActive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSubscriptionView_IsCancelling(t *testing.T) {
	tests := []struct {
		name string
		view SubscriptionView
		want bool
	}{
		{"active cancelling", SubscriptionView{Status: SubscriptionStatusActive, CancelAtPeriodEnd: true}, true},
		{"active not cancelling", SubscriptionView{Status: SubscriptionStatusActive}, false},
		{"none with stray flag", SubscriptionView{Status: SubscriptionStatusNone, CancelAtPeriodEnd: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.view.IsCancelling(); got != tt.want {
				t.Errorf("IsCancelling() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNotSubscribed(t *testing.T) {
	v := NotSubscribed("acct-9")
	if v.AccountID != "acct-9" {
		t.Errorf("expected AccountID=acct-9, got %q", v.AccountID)
	}
	if v.Status != SubscriptionStatusNone {
		t.Errorf("expected status none, got %q", v.Status)
	}
	if v.IsActive() {
		t.Errorf("NotSubscribed view must never be active")
	}
	if v.CurrentPeriodEnd != nil {
		t.Errorf("expected nil CurrentPeriodEnd")
	}
}
