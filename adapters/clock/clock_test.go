package clock

import (
	"testing"
	"time"
)

func TestReal_Now(t *testing.T) {
	before := time.Now().UTC().Add(-time.Second)
	got := Real{}.Now()
	after := time.Now().UTC().Add(time.Second)

	if got.Before(before) || got.After(after) {
		t.Errorf("Real.Now() = %v, outside [%v, %v]", got, before, after)
	}
	if got.Location() != time.UTC {
		t.Errorf("Real.Now() must return UTC, got %v", got.Location())
	}
}

func TestFake_SetAndAdvance(t *testing.T) {
	t0 := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(t0)

	if !f.Now().Equal(t0) {
		t.Errorf("expected %v, got %v", t0, f.Now())
	}

	f.Advance(30 * 24 * time.Hour)
	if !f.Now().Equal(t0.Add(30 * 24 * time.Hour)) {
		t.Errorf("expected advance by 30d, got %v", f.Now())
	}

	t1 := time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC)
	f.Set(t1)
	if !f.Now().Equal(t1) {
		t.Errorf("expected %v after Set, got %v", t1, f.Now())
	}
}
