package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	raw := []byte("tick_rate_hz: 20\nchase:\n  recheck_distance: 3.5\nflee:\n  min_quiet: 10\n  max_quiet: 20\n")
	if err := os.WriteFile(p, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.TickRateHz != 20 || tu.Chase.RecheckDistance != 3.5 {
		t.Fatalf("overrides not applied: %+v", tu)
	}
	if tu.Chase.ContactRange != Defaults().Chase.ContactRange {
		t.Fatalf("unset field lost its default: %v", tu.Chase.ContactRange)
	}
	if tu.Flee.NearScale != [2]float64{0.4, 1.3} {
		t.Fatalf("flee near scale default lost: %v", tu.Flee.NearScale)
	}
	if got := tu.TickSeconds(); got != 0.05 {
		t.Fatalf("TickSeconds=%v", got)
	}
}

func TestLoadRejectsInvertedQuietBounds(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(p, []byte("flee:\n  min_quiet: 40\n  max_quiet: 30\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected validation error")
	}
}
