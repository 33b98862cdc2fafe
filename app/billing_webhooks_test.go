package app

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/artpar/quotagate/adapters/clock"
	"github.com/artpar/quotagate/adapters/memory"
	"github.com/artpar/quotagate/adapters/metrics"
)

func newWebhookService(t *testing.T) (*BillingWebhookService, *SubscriptionService) {
	t.Helper()
	store := memory.NewSubscriptionStore()
	subs := NewSubscriptionService(store, clock.NewFake(t0), zerolog.Nop(), metrics.New(prometheus.NewRegistry()))
	return NewBillingWebhookService(subs, zerolog.Nop()), subs
}

func TestBillingWebhookService_ActivationLifecycle(t *testing.T) {
	svc, subs := newWebhookService(t)
	ctx := context.Background()
	periodEnd := t0.Add(30 * 24 * time.Hour)

	if err := svc.Handle(ctx, BillingEvent{
		Type:             EventSubscriptionActivated,
		AccountID:        "acct-1",
		CurrentPeriodEnd: &periodEnd,
		OccurredAt:       t0,
	}); err != nil {
		t.Fatalf("activated: %v", err)
	}
	view := subs.GetView(ctx, "acct-1")
	if !view.IsActive() || view.IsCancelling() {
		t.Fatalf("expected active subscription, got %+v", view)
	}
	if view.CurrentPeriodEnd == nil || !view.CurrentPeriodEnd.Equal(periodEnd) {
		t.Errorf("period end not carried through: %+v", view.CurrentPeriodEnd)
	}

	if err := svc.Handle(ctx, BillingEvent{
		Type:             EventCancelScheduled,
		AccountID:        "acct-1",
		CurrentPeriodEnd: &periodEnd,
		OccurredAt:       t0.Add(time.Hour),
	}); err != nil {
		t.Fatalf("cancel scheduled: %v", err)
	}
	view = subs.GetView(ctx, "acct-1")
	if !view.IsCancelling() {
		t.Errorf("expected pending cancellation, got %+v", view)
	}
	// Still active until the billing system demotes the account.
	if !view.IsActive() {
		t.Error("pending cancellation must not demote the account early")
	}

	if err := svc.Handle(ctx, BillingEvent{
		Type:       EventSubscriptionEnded,
		AccountID:  "acct-1",
		OccurredAt: periodEnd,
	}); err != nil {
		t.Fatalf("ended: %v", err)
	}
	if view = subs.GetView(ctx, "acct-1"); view.IsActive() {
		t.Errorf("expected demotion after the subscription ended, got %+v", view)
	}
}

func TestBillingWebhookService_ReplayIsIdempotent(t *testing.T) {
	svc, subs := newWebhookService(t)
	ctx := context.Background()
	periodEnd := t0.Add(30 * 24 * time.Hour)

	event := BillingEvent{
		Type:             EventSubscriptionActivated,
		AccountID:        "acct-1",
		CurrentPeriodEnd: &periodEnd,
		OccurredAt:       t0,
	}
	for i := 0; i < 3; i++ {
		if err := svc.Handle(ctx, event); err != nil {
			t.Fatalf("delivery #%d: %v", i, err)
		}
	}
	if view := subs.GetView(ctx, "acct-1"); !view.IsActive() {
		t.Errorf("expected active view after replays, got %+v", view)
	}
}

func TestBillingWebhookService_UnknownEventIsAcknowledged(t *testing.T) {
	svc, subs := newWebhookService(t)
	ctx := context.Background()

	if err := svc.Handle(ctx, BillingEvent{
		Type:      "invoice.finalized",
		AccountID: "acct-1",
	}); err != nil {
		t.Errorf("unknown event must be acknowledged, got %v", err)
	}
	if view := subs.GetView(ctx, "acct-1"); view.IsActive() {
		t.Errorf("unknown event mutated the read model: %+v", view)
	}
}

func TestBillingWebhookService_MissingAccountID(t *testing.T) {
	svc, _ := newWebhookService(t)

	if err := svc.Handle(context.Background(), BillingEvent{Type: EventSubscriptionActivated}); err == nil {
		t.Error("expected error for an event without account id")
	}
}
