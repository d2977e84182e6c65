package config

import (
	"errors"
	"fmt"
	"log/slog"
)

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch {
	case c.Cache.DownloadConcurrency < 1:
		return fmt.Errorf("cache.download_concurrency must be >= 1, got %d", c.Cache.DownloadConcurrency)
	case c.Cache.MaxJobSize < 0:
		return errors.New("cache.max_job_size must not be negative")
	case c.Cache.SignedURLTTL <= 0:
		return errors.New("cache.signed_url_ttl must be positive")
	}

	switch {
	case c.Retry.MaxAttempts < 1:
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	case c.Retry.InitialInterval < 0:
		return errors.New("retry.initial_interval must not be negative")
	case c.Retry.MaxInterval < c.Retry.InitialInterval:
		return errors.New("retry.max_interval must be >= retry.initial_interval")
	case c.Retry.Multiplier < 1:
		return fmt.Errorf("retry.multiplier must be >= 1, got %g", c.Retry.Multiplier)
	}

	if c.Janitor.CleanupInterval <= 0 {
		return errors.New("janitor.cleanup_interval must be positive")
	}

	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// LogLevel parses Logging.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}
