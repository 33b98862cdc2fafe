package idgen

import "testing"

func TestUUID_New(t *testing.T) {
	g := UUID{}

	a, b := g.New(), g.New()
	if a == b {
		t.Errorf("expected distinct UUIDs, got %q twice", a)
	}
	if len(a) != 36 {
		t.Errorf("expected canonical UUID length 36, got %d (%q)", len(a), a)
	}
}

func TestSequential_New(t *testing.T) {
	g := NewSequential("evt-")

	if got := g.New(); got != "evt-1" {
		t.Errorf("expected evt-1, got %q", got)
	}
	if got := g.New(); got != "evt-2" {
		t.Errorf("expected evt-2, got %q", got)
	}
}
