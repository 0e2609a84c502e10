package sqlite

import (
	"fmt"
	"time"

	"github.com/flemzord/agentbridge/internal/cron"
)

const dbFile = "ledger.db"

// Config is the ledger.sqlite module configuration.
type Config struct {
	// Path defaults to ledger.db in the data directory.
	Path string `yaml:"path"`

	// WAL journal mode, on unless set to false.
	WAL *bool `yaml:"wal"`

	// BusyTimeout in milliseconds.
	BusyTimeout int `yaml:"busy_timeout"`

	// Retention is the age after which runs are pruned. A negative value
	// keeps everything and registers no prune job.
	Retention     time.Duration `yaml:"retention"`
	PruneSchedule string        `yaml:"prune_schedule"`
}

func (c *Config) defaults() {
	if c.WAL == nil {
		on := true
		c.WAL = &on
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5000
	}
	if c.Retention == 0 {
		c.Retention = 30 * 24 * time.Hour
	}
	if c.PruneSchedule == "" {
		c.PruneSchedule = "@hourly"
	}
}

func (c *Config) options() Options {
	return Options{WAL: c.WAL == nil || *c.WAL, BusyTimeout: c.BusyTimeout}
}

func (c *Config) validate() error {
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy_timeout %d is negative", c.BusyTimeout)
	}
	if c.Retention < 0 {
		return nil
	}
	if err := cron.ValidateSchedule(c.PruneSchedule); err != nil {
		return fmt.Errorf("sqlite: prune_schedule: %w", err)
	}
	return nil
}
