package kvsession

import (
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultConnectRetries = 10
	defaultRetryDelay     = 2 * time.Second
)

// RetryConfig bounds the connection bootstrap loop shared by the
// network-backed stores. Per-operation failures are never retried; only
// the initial connection is.
type RetryConfig struct {
	// Retries is the total number of connection attempts. Defaults to 10.
	Retries int
	// Delay is the fixed pause between attempts. Defaults to 2s.
	Delay time.Duration

	// sleep is swapped out by tests so retry behavior can be verified
	// without wall-clock waits.
	sleep func(time.Duration)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Retries <= 0 {
		c.Retries = defaultConnectRetries
	}
	if c.Delay <= 0 {
		c.Delay = defaultRetryDelay
	}
	if c.sleep == nil {
		c.sleep = time.Sleep
	}
	return c
}

// connectRetry runs dial up to cfg.Retries times with cfg.Delay between
// attempts, logging each failure. Exhausting the attempts returns the last
// error wrapped with the target; the caller treats that as fatal.
func connectRetry(cfg RetryConfig, logger *slog.Logger, target string, dial func() error) error {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	var err error
	for attempt := 1; attempt <= cfg.Retries; attempt++ {
		if err = dial(); err == nil {
			return nil
		}
		logger.Warn("session store not ready",
			"target", target,
			"attempt", attempt,
			"retries", cfg.Retries,
			"error", err)
		if attempt < cfg.Retries {
			cfg.sleep(cfg.Delay)
		}
	}
	return fmt.Errorf("failed to connect to %s: %w", target, err)
}
