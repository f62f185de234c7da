package worker

import (
	"fmt"
	"time"
)

// Config tunes the report job worker pool.
type Config struct {
	// Concurrency is how many goroutines claim and process jobs in
	// parallel.
	Concurrency int

	// PollInterval is how long an idle worker waits between claim
	// attempts. Workers drain the queue without waiting while claims
	// succeed.
	PollInterval time.Duration

	// JobTimeout caps a single job's execution. On expiry the job's
	// context is canceled and the job is marked failed.
	JobTimeout time.Duration

	// ShutdownTimeout bounds the wait for in-flight jobs during graceful
	// shutdown. Jobs still running afterward are abandoned in the
	// processing state.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     2,
		PollInterval:    5 * time.Second,
		JobTimeout:      5 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Validate rejects configurations that would stall or overload the pool.
func (c Config) Validate() error {
	switch {
	case c.Concurrency < 1:
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	case c.Concurrency > 100:
		return fmt.Errorf("concurrency too high (max 100), got %d", c.Concurrency)
	case c.PollInterval < time.Second:
		return fmt.Errorf("poll interval must be at least 1 second, got %v", c.PollInterval)
	case c.JobTimeout < time.Second:
		return fmt.Errorf("job timeout must be at least 1 second, got %v", c.JobTimeout)
	case c.ShutdownTimeout < time.Second:
		return fmt.Errorf("shutdown timeout must be at least 1 second, got %v", c.ShutdownTimeout)
	}
	return nil
}
