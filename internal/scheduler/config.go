package scheduler

import (
	"time"

	"github.com/smallbiznis/walletpay/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	Enabled      bool
	RunInterval  time.Duration
	BatchSize    int
	JobTimeout   time.Duration
	PollDelay    time.Duration
	AbandonAfter time.Duration
	EnabledJobs  []string
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		RunInterval:  time.Minute,
		BatchSize:    50,
		JobTimeout:   30 * time.Second,
		PollDelay:    20 * time.Second,
		AbandonAfter: 2 * time.Hour,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:      cfg.Scheduler.Enabled,
		RunInterval:  cfg.Scheduler.RunInterval,
		BatchSize:    cfg.Scheduler.BatchSize,
		PollDelay:    cfg.Scheduler.PollDelay,
		AbandonAfter: cfg.Scheduler.AbandonAfter,
		EnabledJobs:  cfg.Scheduler.EnabledJobs,
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
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.PollDelay <= 0 {
		c.PollDelay = defaults.PollDelay
	}
	if c.AbandonAfter <= 0 {
		c.AbandonAfter = defaults.AbandonAfter
	}
	return c
}
