package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/meigma/assetcache/internal/pathutil"
)

func (c *Config) applyEnv() {
	if v, ok := lookupEnv(EnvDatabaseURL); ok {
		c.Metadata.DatabaseURL = v
	}
	if v, ok := lookupEnv(EnvSQLitePath); ok {
		c.Metadata.SQLitePath = v
	}
	if v, ok := lookupEnv(EnvCacheDir); ok {
		c.Cache.Root = v
	}
	if v, ok := lookupEnv(EnvStorageSecret); ok {
		c.Storage.Secret = v
	}
	if v, ok := lookupEnv(EnvLogLevel); ok {
		c.Logging.Level = v
	}
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// Normalize expands paths and fills derived defaults. Load calls it.
func (c *Config) Normalize() error {
	var err error
	if c.Cache.Root == "" {
		c.Cache.Root = pathutil.DefaultRoot()
	}
	if c.Cache.Root, err = expandPath(c.Cache.Root); err != nil {
		return fmt.Errorf("cache.root: %w", err)
	}
	if c.Cache.SharedDir, err = expandPath(c.Cache.SharedDir); err != nil {
		return fmt.Errorf("cache.shared_dir: %w", err)
	}
	if c.Cache.JobsDir, err = expandPath(c.Cache.JobsDir); err != nil {
		return fmt.Errorf("cache.jobs_dir: %w", err)
	}
	if c.Metadata.SQLitePath, err = expandPath(c.Metadata.SQLitePath); err != nil {
		return fmt.Errorf("metadata.sqlite_path: %w", err)
	}
	if c.Storage.Root, err = expandPath(c.Storage.Root); err != nil {
		return fmt.Errorf("storage.root: %w", err)
	}
	c.Storage.BaseURL = strings.TrimSuffix(strings.TrimSpace(c.Storage.BaseURL), "/")
	if c.Storage.Listen = strings.TrimSpace(c.Storage.Listen); c.Storage.Listen == "" {
		c.Storage.Listen = defaultListen
	}
	if c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level)); c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format)); c.Logging.Format == "" {
		c.Logging.Format = defaultLogFmt
	}
	return nil
}

func expandPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", nil
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
	}
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", p, err)
	}
	return abs, nil
}
