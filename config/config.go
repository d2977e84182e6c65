package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Cache configures the shared and per-job cache directories and downloads.
type Cache struct {
	// Root holds shared/ and jobs/. Empty uses the platform cache dir.
	Root      string `toml:"root"`
	SharedDir string `toml:"shared_dir"`
	// JobsDir is the parent of per-job directories.
	JobsDir             string   `toml:"jobs_dir"`
	DownloadConcurrency int      `toml:"download_concurrency"`
	MaxJobSize          ByteSize `toml:"max_job_size"`
	SignedURLTTL        Duration `toml:"signed_url_ttl"`
	Compression         bool     `toml:"compression"`
}

// Retry configures the download retry schedule.
type Retry struct {
	MaxAttempts     int      `toml:"max_attempts"`
	InitialInterval Duration `toml:"initial_interval"`
	MaxInterval     Duration `toml:"max_interval"`
	Multiplier      float64  `toml:"multiplier"`
}

// Janitor configures shared cache eviction.
type Janitor struct {
	Enabled         bool     `toml:"enabled"`
	MaxTotalSize    ByteSize `toml:"max_total_size"`
	MaxFileAge      Duration `toml:"max_file_age"`
	CleanupInterval Duration `toml:"cleanup_interval"`
	// Lock serializes cycles across processes sharing the cache.
	Lock bool `toml:"lock"`
}

// Metadata selects the asset metadata store. DatabaseURL wins over
// SQLitePath when both are set.
type Metadata struct {
	DatabaseURL string `toml:"database_url"`
	SQLitePath  string `toml:"sqlite_path"`
}

// Storage configures the local signed-URL object store.
type Storage struct {
	Root    string `toml:"root"`
	BaseURL string `toml:"base_url"`
	Listen  string `toml:"listen"`
	Secret  string `toml:"secret"`
}

// Logging configures log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the complete assetcache configuration.
type Config struct {
	Cache    Cache    `toml:"cache"`
	Retry    Retry    `toml:"retry"`
	Janitor  Janitor  `toml:"janitor"`
	Metadata Metadata `toml:"metadata"`
	Storage  Storage  `toml:"storage"`
	Logging  Logging  `toml:"logging"`
}

// SampleConfig returns a commented TOML file with every setting.
func SampleConfig() string {
	return sampleConfig
}

// Load builds a configuration from defaults, the TOML file at path (skipped
// when path is empty), the given .env files and the environment. With no
// envFiles, ".env" in the working directory is read if it exists.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := loadDotEnv(envFiles); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(files []string) error {
	if len(files) == 0 {
		if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// Marshal encodes c as TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
