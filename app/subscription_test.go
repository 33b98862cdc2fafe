package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/artpar/quotagate/adapters/clock"
	"github.com/artpar/quotagate/adapters/memory"
	"github.com/artpar/quotagate/adapters/metrics"
	"github.com/artpar/quotagate/domain/billing"
	"github.com/artpar/quotagate/ports"
)

var t0 = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func newSubscriptionService(t *testing.T) (*SubscriptionService, *memory.SubscriptionStore, *clock.Fake, *metrics.Collector) {
	t.Helper()
	store := memory.NewSubscriptionStore()
	fake := clock.NewFake(t0)
	collector := metrics.New(prometheus.NewRegistry())
	svc := NewSubscriptionService(store, fake, zerolog.Nop(), collector)
	return svc, store, fake, collector
}

func activeView(accountID string, periodEnd time.Time) billing.SubscriptionView {
	return billing.SubscriptionView{
		AccountID:        accountID,
		Status:           billing.SubscriptionStatusActive,
		CurrentPeriodEnd: &periodEnd,
		UpdatedAt:        t0,
	}
}

func TestSubscriptionService_GetView_NoRowIsNotSubscribed(t *testing.T) {
	svc, _, _, collector := newSubscriptionService(t)

	view := svc.GetView(context.Background(), "acct-1")
	if view.IsActive() {
		t.Error("expected not-subscribed view for unknown account")
	}
	if view.AccountID != "acct-1" {
		t.Errorf("view carries wrong account: %q", view.AccountID)
	}
	// Absence is not a lookup failure.
	if got := testutil.ToFloat64(collector.SubscriptionLookupFailures); got != 0 {
		t.Errorf("lookup failures = %v, want 0", got)
	}
}

func TestSubscriptionService_GetView_FailsClosed(t *testing.T) {
	svc, store, _, collector := newSubscriptionService(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, activeView("acct-1", t0.Add(30*24*time.Hour))); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	store.SetFailing(true)

	// A broken store must degrade a paid account to metered, never grant
	// unlimited use.
	view := svc.GetView(ctx, "acct-1")
	if view.IsActive() {
		t.Error("lookup failure granted an active subscription")
	}
	if got := testutil.ToFloat64(collector.SubscriptionLookupFailures); got != 1 {
		t.Errorf("lookup failures = %v, want 1", got)
	}
}

func TestSubscriptionService_GetView_CachesWithinTTL(t *testing.T) {
	svc, store, fake, collector := newSubscriptionService(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, activeView("acct-1", t0.Add(30*24*time.Hour))); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if view := svc.GetView(ctx, "acct-1"); !view.IsActive() {
		t.Fatal("expected active view from store")
	}

	// Second read within the TTL is served from cache even when the store
	// is down.
	store.SetFailing(true)
	if view := svc.GetView(ctx, "acct-1"); !view.IsActive() {
		t.Error("expected cached active view")
	}
	if got := testutil.ToFloat64(collector.SubscriptionCacheHits); got != 1 {
		t.Errorf("cache hits = %v, want 1", got)
	}

	// Past the TTL the store is consulted again; with it failing, the
	// view collapses to not-subscribed.
	fake.Advance(DefaultSubscriptionCacheTTL + time.Second)
	if view := svc.GetView(ctx, "acct-1"); view.IsActive() {
		t.Error("expected expired cache entry to force a (failing) lookup")
	}
}

func TestSubscriptionService_GetView_FailureIsNotCached(t *testing.T) {
	svc, store, _, _ := newSubscriptionService(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, activeView("acct-1", t0.Add(30*24*time.Hour))); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	store.SetFailing(true)
	if view := svc.GetView(ctx, "acct-1"); view.IsActive() {
		t.Fatal("expected not-subscribed while the store is down")
	}

	// Recovery is immediate: the degraded answer was never cached.
	store.SetFailing(false)
	if view := svc.GetView(ctx, "acct-1"); !view.IsActive() {
		t.Error("expected active view after the store recovered")
	}
}

func TestSubscriptionService_Resume(t *testing.T) {
	svc, store, _, _ := newSubscriptionService(t)
	ctx := context.Background()

	view := activeView("acct-1", t0.Add(30*24*time.Hour))
	view.CancelAtPeriodEnd = true
	if err := store.Upsert(ctx, view); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if got := svc.GetView(ctx, "acct-1"); !got.IsCancelling() {
		t.Fatal("precondition: expected a pending cancellation")
	}

	if err := svc.Resume(ctx, "acct-1"); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	// Resume invalidates the cache, so the fresh flag is visible at once.
	got := svc.GetView(ctx, "acct-1")
	if got.IsCancelling() {
		t.Error("expected cancellation cleared after resume")
	}
	if !got.IsActive() {
		t.Error("resume must not change subscription status")
	}

	// Idempotent.
	if err := svc.Resume(ctx, "acct-1"); err != nil {
		t.Errorf("second Resume: %v", err)
	}
}

func TestSubscriptionService_Resume_UnknownAccount(t *testing.T) {
	svc, _, _, _ := newSubscriptionService(t)

	err := svc.Resume(context.Background(), "nobody")
	if !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("expected ports.ErrNotFound, got %v", err)
	}
}

func TestSubscriptionService_Apply(t *testing.T) {
	svc, _, _, _ := newSubscriptionService(t)
	ctx := context.Background()

	if err := svc.Apply(ctx, billing.SubscriptionView{}); err == nil {
		t.Error("expected error for a view without account id")
	}

	// Seed the cache with not-subscribed, then apply an activation: the
	// invalidation must make the new state visible immediately.
	if view := svc.GetView(ctx, "acct-1"); view.IsActive() {
		t.Fatal("precondition: expected not subscribed")
	}
	if err := svc.Apply(ctx, activeView("acct-1", t0.Add(30*24*time.Hour))); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if view := svc.GetView(ctx, "acct-1"); !view.IsActive() {
		t.Error("expected activation visible after Apply")
	}
}
