package reconciler

import (
	"fmt"
)

// Config holds configuration options for the reconciliation service
type Config struct {
	// BatchSize is how many rows each persistence call writes
	BatchSize int `mapstructure:"batch_size"`

	// DefaultDaysBack sizes the fetch window when no explicit dates are given
	DefaultDaysBack int `mapstructure:"default_days_back"`

	// ReconcileDaysBack is the statement window of a reconciliation run
	ReconcileDaysBack int `mapstructure:"reconcile_days_back"`

	// SkipDuplicateAlerts suppresses a new alert when a pending alert of the
	// same type already exists for the statement
	SkipDuplicateAlerts bool `mapstructure:"skip_duplicate_alerts"`
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		BatchSize:           100,
		DefaultDaysBack:     30,
		ReconcileDaysBack:   30,
		SkipDuplicateAlerts: true,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.DefaultDaysBack <= 0 {
		return fmt.Errorf("default days back must be positive, got %d", c.DefaultDaysBack)
	}
	if c.ReconcileDaysBack <= 0 {
		return fmt.Errorf("reconcile days back must be positive, got %d", c.ReconcileDaysBack)
	}
	return nil
}

// chunk splits n items into [start, end) ranges of at most size
func chunk(n, size int) [][2]int {
	var ranges [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		ranges = append(ranges, [2]int{start, end})
	}
	return ranges
}
