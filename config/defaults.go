package config

import (
	"github.com/meigma/assetcache"
	"github.com/meigma/assetcache/internal/retry"
	"github.com/meigma/assetcache/janitor"
	"github.com/meigma/assetcache/storage"
)

// Environment variables that override file settings.
const (
	EnvDatabaseURL   = "ASSETCACHE_DATABASE_URL"
	EnvCacheDir      = "ASSETCACHE_DIR"
	EnvSQLitePath    = "ASSETCACHE_SQLITE_PATH"
	EnvStorageSecret = "ASSETCACHE_STORAGE_SECRET"
	EnvLogLevel      = "ASSETCACHE_LOG_LEVEL"
)

const (
	defaultListen   = "127.0.0.1:8089"
	defaultLogLevel = "info"
	defaultLogFmt   = "text"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Cache: Cache{
			DownloadConcurrency: assetcache.DefaultDownloadConcurrency,
			MaxJobSize:          ByteSize(assetcache.DefaultMaxJobSizeBytes),
			SignedURLTTL:        Duration(storage.DefaultSignedURLTTL),
		},
		Retry: Retry{
			MaxAttempts:     retry.DefaultMaxAttempts,
			InitialInterval: Duration(retry.DefaultInitialInterval),
			MaxInterval:     Duration(retry.DefaultMaxInterval),
			Multiplier:      retry.DefaultMultiplier,
		},
		Janitor: Janitor{
			MaxTotalSize:    ByteSize(janitor.DefaultMaxTotalBytes),
			MaxFileAge:      Duration(janitor.DefaultMaxFileAge),
			CleanupInterval: Duration(janitor.DefaultCleanupInterval),
			Lock:            true,
		},
		Storage: Storage{
			Listen: defaultListen,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFmt,
		},
	}
}
