package syncer_test

import (
	"testing"
	"time"

	"binder/syncer"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := syncer.LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.StructureDebounce != time.Second {
		t.Errorf("structure debounce = %v, want 1s", cfg.StructureDebounce)
	}
	if cfg.ContentInterval != 10*time.Second {
		t.Errorf("content interval = %v, want 10s", cfg.ContentInterval)
	}
	if cfg.SweepInterval != 15*time.Minute {
		t.Errorf("sweep interval = %v, want 15m", cfg.SweepInterval)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("BINDER_STRUCTURE_DEBOUNCE", "250ms")
	t.Setenv("BINDER_SWEEP_INTERVAL", "5m")

	cfg, err := syncer.LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.StructureDebounce != 250*time.Millisecond {
		t.Errorf("structure debounce = %v, want 250ms", cfg.StructureDebounce)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Errorf("sweep interval = %v, want 5m", cfg.SweepInterval)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("BINDER_CONTENT_INTERVAL", "not-a-duration")
	if _, err := syncer.LoadConfig(); err == nil {
		t.Error("malformed duration should be rejected")
	}
}

func TestConfigValidation(t *testing.T) {
	t.Setenv("BINDER_SWEEP_INTERVAL", "5s")
	if _, err := syncer.LoadConfig(); err == nil {
		t.Error("sub-minute sweep interval should be rejected")
	}
}
