package janitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/spf13/afero"
)

// Defaults for a Janitor.
const (
	DefaultMaxTotalBytes   int64 = 10 << 30 // 10 GiB
	DefaultMaxFileAge            = 7 * 24 * time.Hour
	DefaultCleanupInterval       = time.Hour
)

// Config holds the eviction thresholds.
type Config struct {
	// MaxTotalBytes is the size budget. Values <= 0 disable size eviction.
	MaxTotalBytes int64
	// MaxFileAge evicts files not modified within this duration. Age
	// eviction applies even when the cache is under MaxTotalBytes, so a
	// cycle may remove expired files from a cache within budget. Values
	// <= 0 disable it and leave the size budget as the only rule; with
	// WithConfig use a negative value, since zero keeps the default.
	MaxFileAge time.Duration
	// CleanupInterval is the time between cycles.
	CleanupInterval time.Duration
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		MaxTotalBytes:   DefaultMaxTotalBytes,
		MaxFileAge:      DefaultMaxFileAge,
		CleanupInterval: DefaultCleanupInterval,
	}
}

// Report describes one cleanup cycle.
type Report struct {
	Scanned        int
	TotalBytes     int64
	ExpiredRemoved int
	SizeRemoved    int
	RemovedBytes   int64
	Remaining      int64
	Errors         int
	// Skipped is true when another process held the lock.
	Skipped bool
}

// Removed returns the number of files removed for any reason.
func (r Report) Removed() int {
	return r.ExpiredRemoved + r.SizeRemoved
}

// Janitor evicts files from a shared cache directory.
type Janitor struct {
	dir      string
	cfg      Config
	fs       afero.Fs
	dirPerm  os.FileMode
	logger   *slog.Logger
	now      func() time.Time
	lockPath string
	exclude  func(path string) bool

	cycleMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithConfig sets the eviction thresholds. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(j *Janitor) {
		if cfg.MaxTotalBytes != 0 {
			j.cfg.MaxTotalBytes = cfg.MaxTotalBytes
		}
		if cfg.MaxFileAge != 0 {
			j.cfg.MaxFileAge = cfg.MaxFileAge
		}
		if cfg.CleanupInterval != 0 {
			j.cfg.CleanupInterval = cfg.CleanupInterval
		}
	}
}

// WithFs sets the filesystem. Defaults to the OS filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(j *Janitor) {
		j.fs = fsys
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Janitor) {
		j.logger = logger
	}
}

// WithClock overrides the time source used for age checks.
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) {
		j.now = now
	}
}

// WithLockFile serializes cycles across processes with an flock on path.
// A cycle that cannot take the lock is skipped. The lock lives on the OS
// filesystem even when WithFs supplies another one. An empty path
// disables locking.
func WithLockFile(path string) Option {
	return func(j *Janitor) {
		j.lockPath = path
	}
}

// WithExclude protects paths for which fn returns true from eviction.
func WithExclude(fn func(path string) bool) Option {
	return func(j *Janitor) {
		j.exclude = fn
	}
}

// New creates a stopped Janitor for dir.
func New(dir string, opts ...Option) (*Janitor, error) {
	if dir == "" {
		return nil, errors.New("janitor: cache dir is empty")
	}
	j := &Janitor{
		dir:     dir,
		cfg:     DefaultConfig(),
		fs:      afero.NewOsFs(),
		dirPerm: 0o750,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.cfg.CleanupInterval <= 0 {
		return nil, fmt.Errorf("janitor: cleanup interval must be > 0, got %s", j.cfg.CleanupInterval)
	}
	if j.logger == nil {
		j.logger = slog.New(slog.DiscardHandler)
	}
	return j, nil
}

// Dir returns the directory the janitor manages.
func (j *Janitor) Dir() string { return j.dir }

// Config returns the effective thresholds.
func (j *Janitor) Config() Config { return j.cfg }

// Start runs a cycle immediately and then every CleanupInterval until Stop
// or ctx ends. Calling Start on a running Janitor does nothing.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	j.cancel = cancel
	j.done = done

	go func() {
		defer close(done)
		// A ctx that ends without Stop leaves the janitor stopped.
		defer func() {
			j.mu.Lock()
			if j.done == done {
				j.cancel()
				j.cancel, j.done = nil, nil
			}
			j.mu.Unlock()
		}()
		ticker := time.NewTicker(j.cfg.CleanupInterval)
		defer ticker.Stop()

		j.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.RunOnce(ctx)
			}
		}
	}()
	j.logger.InfoContext(ctx, "janitor started",
		slog.String("dir", j.dir),
		slog.Duration("interval", j.cfg.CleanupInterval),
		slog.String("max_total", humanize.IBytes(uint64(max(j.cfg.MaxTotalBytes, 0)))),
		slog.Duration("max_file_age", j.cfg.MaxFileAge))
}

// Stop prevents further cycles and waits for an in-progress cycle to finish.
// Stopping a stopped Janitor does nothing.
func (j *Janitor) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	j.logger.Info("janitor stopped", slog.String("dir", j.dir))
}

// Running reports whether the janitor has been started and not stopped.
func (j *Janitor) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancel != nil
}

// Scan reports current usage without removing anything.
func (j *Janitor) Scan() (Stats, error) {
	entries, _, err := listEntries(j.fs, j.dir, j.dirPerm)
	if err != nil {
		return Stats{Dir: j.dir}, fmt.Errorf("janitor: list %s: %w", j.dir, err)
	}
	return summarize(j.dir, entries), nil
}

// RunOnce performs a single cleanup cycle. Cycles in one process never
// overlap. Errors are logged and counted in the report, never returned.
func (j *Janitor) RunOnce(ctx context.Context) Report {
	j.cycleMu.Lock()
	defer j.cycleMu.Unlock()

	var report Report
	if j.lockPath != "" {
		unlock, ok := j.tryLock(ctx)
		if !ok {
			report.Skipped = true
			return report
		}
		defer unlock()
	}

	entries, statErrs, err := listEntries(j.fs, j.dir, j.dirPerm)
	if err != nil {
		j.logger.WarnContext(ctx, "janitor: list shared cache failed",
			slog.String("dir", j.dir), slog.Any("error", err))
		report.Errors++
		return report
	}
	for _, statErr := range statErrs {
		j.logger.DebugContext(ctx, "janitor: stat failed", slog.Any("error", statErr))
		report.Errors++
	}

	now := j.now()
	live := make([]cacheEntry, 0, len(entries))
	for _, e := range entries {
		expired := j.cfg.MaxFileAge > 0 && now.Sub(e.modTime) > j.cfg.MaxFileAge
		if e.temp && !expired {
			continue
		}
		report.Scanned++
		report.TotalBytes += e.size
		if expired && !j.excluded(e.path) {
			if j.remove(ctx, e, "expired", &report) {
				report.ExpiredRemoved++
				continue
			}
		}
		live = append(live, e)
	}

	remaining := report.TotalBytes - report.RemovedBytes
	if j.cfg.MaxTotalBytes > 0 && remaining > j.cfg.MaxTotalBytes {
		sortOldestFirst(live)
		for _, e := range live {
			if remaining <= j.cfg.MaxTotalBytes {
				break
			}
			if j.excluded(e.path) {
				continue
			}
			if j.remove(ctx, e, "over budget", &report) {
				report.SizeRemoved++
				remaining -= e.size
			}
		}
	}
	report.Remaining = remaining

	if report.Removed() > 0 {
		j.logger.InfoContext(ctx, "janitor: evicted shared cache files",
			slog.String("dir", j.dir),
			slog.Int("removed", report.Removed()),
			slog.Int("expired", report.ExpiredRemoved),
			slog.String("freed", humanize.IBytes(uint64(report.RemovedBytes))),
			slog.String("remaining", humanize.IBytes(uint64(max(report.Remaining, 0)))))
	} else {
		j.logger.DebugContext(ctx, "janitor: shared cache within limits",
			slog.String("dir", j.dir),
			slog.Int("files", report.Scanned),
			slog.String("total", humanize.IBytes(uint64(report.TotalBytes))))
	}
	return report
}

func (j *Janitor) remove(ctx context.Context, e cacheEntry, reason string, report *Report) bool {
	if err := j.fs.Remove(e.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Someone else removed it; the bytes are gone either way.
			report.RemovedBytes += e.size
			return true
		}
		j.logger.WarnContext(ctx, "janitor: remove failed",
			slog.String("path", e.path),
			slog.String("reason", reason),
			slog.Any("error", err))
		report.Errors++
		return false
	}
	report.RemovedBytes += e.size
	return true
}

func (j *Janitor) excluded(path string) bool {
	return j.exclude != nil && j.exclude(path)
}

func (j *Janitor) tryLock(ctx context.Context) (unlock func(), ok bool) {
	if err := os.MkdirAll(filepath.Dir(j.lockPath), j.dirPerm); err != nil {
		j.logger.WarnContext(ctx, "janitor: create lock dir failed", slog.Any("error", err))
		return nil, false
	}
	lock := flock.New(j.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		j.logger.WarnContext(ctx, "janitor: lock failed", slog.String("path", j.lockPath), slog.Any("error", err))
		return nil, false
	}
	if !locked {
		j.logger.DebugContext(ctx, "janitor: cycle skipped, lock held elsewhere", slog.String("path", j.lockPath))
		return nil, false
	}
	return func() { _ = lock.Unlock() }, true
}
