package syncer

import (
	"os"
	"time"

	"github.com/rohanthewiz/serr"
)

// Config holds the sync engine's tunables. All values come from
// environment variables so deployment configuration stays external to
// the binary.
type Config struct {
	StructureDebounce time.Duration // quiet window after an edit before a structure pass (BINDER_STRUCTURE_DEBOUNCE)
	StructureBackoff  time.Duration // spacing before a coalesced trailing re-run (BINDER_STRUCTURE_BACKOFF)
	ContentInterval   time.Duration // periodic content batch interval (BINDER_CONTENT_INTERVAL)
	SweepInterval     time.Duration // reconciliation sweep interval (BINDER_SWEEP_INTERVAL)
	SweepStartupDelay time.Duration // delay before the first sweep (BINDER_SWEEP_STARTUP_DELAY)
	PersistDebounce   time.Duration // quiet window before writing the tree cache (BINDER_PERSIST_DEBOUNCE)
}

// Defaults tuned for interactive editing: structure changes land within
// about a second, content follows on a slower cadence, and the sweep
// stays out of the way of a fresh session.
const (
	defaultStructureDebounce = 1 * time.Second
	defaultStructureBackoff  = 2 * time.Second
	defaultContentInterval   = 10 * time.Second
	defaultSweepInterval     = 15 * time.Minute
	defaultSweepStartupDelay = 30 * time.Second
	defaultPersistDebounce   = 500 * time.Millisecond
)

// LoadConfig reads engine configuration from the environment, falling
// back to the defaults above.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		StructureDebounce: defaultStructureDebounce,
		StructureBackoff:  defaultStructureBackoff,
		ContentInterval:   defaultContentInterval,
		SweepInterval:     defaultSweepInterval,
		SweepStartupDelay: defaultSweepStartupDelay,
		PersistDebounce:   defaultPersistDebounce,
	}

	overrides := []struct {
		env string
		dst *time.Duration
	}{
		{"BINDER_STRUCTURE_DEBOUNCE", &cfg.StructureDebounce},
		{"BINDER_STRUCTURE_BACKOFF", &cfg.StructureBackoff},
		{"BINDER_CONTENT_INTERVAL", &cfg.ContentInterval},
		{"BINDER_SWEEP_INTERVAL", &cfg.SweepInterval},
		{"BINDER_SWEEP_STARTUP_DELAY", &cfg.SweepStartupDelay},
		{"BINDER_PERSIST_DEBOUNCE", &cfg.PersistDebounce},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, serr.Wrap(err, "invalid "+o.env+" value, expected duration like '5m' or '30s'")
			}
			*o.dst = d
		}
	}

	return cfg, cfg.Validate()
}

// Validate fails fast on settings that would make the engine thrash or
// stall rather than discovering them mid-session.
func (c *Config) Validate() error {
	if c.StructureDebounce <= 0 {
		return serr.New("BINDER_STRUCTURE_DEBOUNCE must be positive")
	}
	if c.StructureBackoff <= 0 {
		return serr.New("BINDER_STRUCTURE_BACKOFF must be positive")
	}
	if c.ContentInterval < time.Second {
		return serr.New("BINDER_CONTENT_INTERVAL must be at least 1s")
	}
	if c.SweepInterval < time.Minute {
		return serr.New("BINDER_SWEEP_INTERVAL must be at least 1m")
	}
	if c.SweepStartupDelay < 0 {
		return serr.New("BINDER_SWEEP_STARTUP_DELAY cannot be negative")
	}
	if c.PersistDebounce <= 0 {
		return serr.New("BINDER_PERSIST_DEBOUNCE must be positive")
	}
	return nil
}
