package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/meigma/assetcache/config"
	"github.com/meigma/assetcache/metadata"
	"github.com/meigma/assetcache/metadata/postgres"
	"github.com/meigma/assetcache/metadata/sqlite"
	"github.com/meigma/assetcache/storage/localfs"
)

type globalFlags struct {
	configPath string
	envFiles   []string
	logLevel   string
	cacheRoot  string
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(c.flags.configPath), c.flags.envFiles...)
		if err != nil {
			c.configErr = err
			return
		}
		if c.flags.cacheRoot != "" {
			cfg.Cache.Root = c.flags.cacheRoot
		}
		if c.flags.logLevel != "" {
			cfg.Logging.Level = c.flags.logLevel
		}
		if err := cfg.Normalize(); err != nil {
			c.configErr = err
			return
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// log returns the process logger, writing to stderr.
func (c *commandContext) log() *slog.Logger {
	c.loggerOnce.Do(func() {
		c.logger = newLogger(os.Stderr, c.configValue())
	})
	return c.logger
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	format := "text"
	if cfg != nil {
		if l, err := cfg.LogLevel(); err == nil {
			level = l
		}
		format = cfg.Logging.Format
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openMetadata opens the configured metadata store. close releases it.
func (c *commandContext) openMetadata(ctx context.Context) (metadata.Store, func(), error) {
	cfg := c.configValue()
	switch {
	case cfg.Metadata.DatabaseURL != "":
		pool, err := postgres.Connect(ctx, cfg.Metadata.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return postgres.New(pool), pool.Close, nil
	case cfg.Metadata.SQLitePath != "":
		s, err := sqlite.Open(cfg.Metadata.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("no metadata store configured: set metadata.database_url, %s or --sqlite", config.EnvDatabaseURL)
	}
}

// openObjectStore opens the local object store. When no base URL is
// configured the caller must serve its handler and set one.
func (c *commandContext) openObjectStore() (*localfs.Store, error) {
	cfg := c.configValue()
	if cfg.Storage.Root == "" {
		return nil, errors.New("no object store configured: set storage.root or --storage-root")
	}
	var opts []localfs.Option
	if cfg.Storage.Secret != "" {
		opts = append(opts, localfs.WithSecret([]byte(cfg.Storage.Secret)))
	}
	return localfs.New(cfg.Storage.Root, cfg.Storage.BaseURL, opts...)
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
