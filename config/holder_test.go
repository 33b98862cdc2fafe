package config

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestHolder_GetAndReload(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	h, err := NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	defer h.Stop()

	if got := h.Get().Quota.FreeLimit; got != 5 {
		t.Errorf("initial free limit = %d", got)
	}

	newContent := `
upstream:
  url: http://localhost:9000
quota:
  free_limit: 50
`
	if err := os.WriteFile(path, []byte(newContent), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := h.Get().Quota.FreeLimit; got != 50 {
		t.Errorf("reloaded free limit = %d, want 50", got)
	}
}

func TestHolder_ReloadFailureKeepsOldConfig(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	h, err := NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	defer h.Stop()

	// An invalid rewrite must not take effect.
	if err := os.WriteFile(path, []byte("upstream:\n  url: \"\"\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := h.Reload(); err == nil {
		t.Fatal("expected reload error for invalid config")
	}
	if got := h.Get().Upstream.URL; got != "http://localhost:9000" {
		t.Errorf("old config lost: url = %q", got)
	}
}

func TestHolder_OnChange(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	h, err := NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	defer h.Stop()

	var gotLimit int64
	h.OnChange(func(cfg *Config) {
		gotLimit = cfg.Quota.FreeLimit
	})

	newContent := `
upstream:
  url: http://localhost:9000
quota:
  free_limit: 7
`
	if err := os.WriteFile(path, []byte(newContent), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if gotLimit != 7 {
		t.Errorf("listener saw free limit %d, want 7", gotLimit)
	}
}

func TestHolder_WatchFile(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	h, err := NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	defer h.Stop()

	changed := make(chan int64, 1)
	h.OnChange(func(cfg *Config) {
		select {
		case changed <- cfg.Quota.FreeLimit:
		default:
		}
	})

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile: %v", err)
	}

	newContent := `
upstream:
  url: http://localhost:9000
quota:
  free_limit: 9
`
	if err := os.WriteFile(path, []byte(newContent), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case limit := <-changed:
		if limit != 9 {
			t.Errorf("watched reload saw free limit %d, want 9", limit)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for file watch reload")
	}
}
