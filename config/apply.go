package config

import (
	"log/slog"
	"path/filepath"

	"github.com/meigma/assetcache"
	assethttp "github.com/meigma/assetcache/http"
	"github.com/meigma/assetcache/internal/pathutil"
	"github.com/meigma/assetcache/internal/retry"
	"github.com/meigma/assetcache/janitor"
)

// SharedDir returns the effective shared cache directory.
func (c *Config) SharedDir() string {
	if c.Cache.SharedDir != "" {
		return c.Cache.SharedDir
	}
	return pathutil.SharedDir(c.Cache.Root)
}

// RetryPolicy returns the configured download retry schedule.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     c.Retry.MaxAttempts,
		InitialInterval: c.Retry.InitialInterval.Std(),
		MaxInterval:     c.Retry.MaxInterval.Std(),
		Multiplier:      c.Retry.Multiplier,
	}
}

// JanitorOptions returns options for a janitor over SharedDir.
func (c *Config) JanitorOptions(logger *slog.Logger) []janitor.Option {
	opts := []janitor.Option{
		janitor.WithConfig(janitor.Config{
			MaxTotalBytes:   int64(c.Janitor.MaxTotalSize),
			MaxFileAge:      c.Janitor.MaxFileAge.Std(),
			CleanupInterval: c.Janitor.CleanupInterval.Std(),
		}),
		janitor.WithLogger(logger),
	}
	lock := ""
	if c.Janitor.Lock {
		lock = filepath.Join(c.SharedDir(), janitor.LockFileName)
	}
	opts = append(opts, janitor.WithLockFile(lock))
	return opts
}

// JobDir returns the effective cache directory for jobID.
func (c *Config) JobDir(jobID string) string {
	if c.Cache.JobsDir != "" {
		return filepath.Join(c.Cache.JobsDir, pathutil.SanitizeComponent(jobID))
	}
	return pathutil.JobDir(c.Cache.Root, jobID)
}

// Apply returns options for a manager of jobID reflecting the configuration.
func (c *Config) Apply(jobID string, logger *slog.Logger) []assetcache.Option {
	opts := []assetcache.Option{
		assetcache.WithCacheRoot(c.Cache.Root),
		assetcache.WithDownloadConcurrency(c.Cache.DownloadConcurrency),
		assetcache.WithMaxJobSizeBytes(int64(c.Cache.MaxJobSize)),
		assetcache.WithSignedURLTTL(c.Cache.SignedURLTTL.Std()),
		assetcache.WithRetryPolicy(c.RetryPolicy()),
		assetcache.WithFetcher(assethttp.NewFetcher(assethttp.WithCompression(c.Cache.Compression))),
		assetcache.WithLogger(logger),
	}
	if c.Cache.SharedDir != "" {
		opts = append(opts, assetcache.WithSharedCacheDir(c.Cache.SharedDir))
	}
	if c.Cache.JobsDir != "" {
		opts = append(opts, assetcache.WithJobCacheDir(c.JobDir(jobID)))
	}
	if c.Janitor.Enabled {
		opts = append(opts, assetcache.WithJanitor(c.JanitorOptions(logger)...))
	}
	return opts
}
