package scheduler

import "time"

// Config controls the settlement run cadence.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Hour,
		BatchSize:   200,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	return c
}
