// Package link places job-local references to shared cache files.
//
// A hard link is preferred because it costs no extra disk space. When the
// job and shared directories are on different filesystems, or the platform
// forbids the link, the file is copied instead.
package link

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/meigma/assetcache/internal/fsutil"
)

// ErrMaterialize is returned when neither a link nor a copy could be made.
var ErrMaterialize = errors.New("link: materialize failed")

// Result reports how a job-local file was produced.
type Result struct {
	// Linked is true for a hard link, false for a copy.
	Linked bool
	// Existed is true when the destination was already present.
	Existed bool
}

// LinkFunc creates newname as a hard link to oldname.
type LinkFunc func(oldname, newname string) error

// Materializer links or copies shared cache files into job directories.
type Materializer struct {
	link    LinkFunc
	dirPerm os.FileMode
	logger  *slog.Logger
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithLinkFunc replaces os.Link. Tests use it to simulate cross-device links.
func WithLinkFunc(fn LinkFunc) Option {
	return func(m *Materializer) {
		m.link = fn
	}
}

// WithLogger sets the logger for fallback events.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Materializer) {
		m.logger = logger
	}
}

// WithDirPerm sets the permissions used for created job directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(m *Materializer) {
		m.dirPerm = mode
	}
}

// New creates a Materializer.
func New(opts ...Option) *Materializer {
	m := &Materializer{
		link:    os.Link,
		dirPerm: 0o750,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.link == nil {
		m.link = os.Link
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	return m
}

// LinkOrCopy makes jobPath refer to the content of sharedPath.
//
// An existing jobPath counts as success. Link failures caused by
// cross-device placement, permissions or filesystem support fall back to
// a copy; any other failure, or a failed copy, is returned together with
// the link error.
func (m *Materializer) LinkOrCopy(sharedPath, jobPath string) (Result, error) {
	if err := os.MkdirAll(filepath.Dir(jobPath), m.dirPerm); err != nil {
		return Result{}, fmt.Errorf("%w: create job dir: %w", ErrMaterialize, err)
	}

	linkErr := m.link(sharedPath, jobPath)
	if linkErr == nil {
		return Result{Linked: true}, nil
	}
	if errors.Is(linkErr, fs.ErrExist) {
		return Result{Linked: true, Existed: true}, nil
	}
	if !fsutil.IsLinkUnsupported(linkErr) {
		return Result{}, fmt.Errorf("%w: %w", ErrMaterialize, linkErr)
	}

	m.logger.Debug("hard link unavailable, copying",
		slog.String("shared_path", sharedPath),
		slog.String("job_path", jobPath),
		slog.Bool("cross_device", fsutil.IsCrossDevice(linkErr)),
		slog.Any("error", linkErr))

	existed, copyErr := copyFile(sharedPath, jobPath)
	if copyErr != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrMaterialize, errors.Join(linkErr, copyErr))
	}
	return Result{Linked: false, Existed: existed}, nil
}

// copyFile copies src to a temp file next to dst and publishes it without
// replacing an existing dst. existed is true when dst was already present.
func copyFile(src, dst string) (existed bool, err error) {
	in, err := os.Open(src) //nolint:gosec // src is a cache path we own
	if err != nil {
		return false, fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	tmpPath := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+"."+uuid.NewString()+".tmp")
	out, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640) //nolint:gosec // tmpPath is derived from dst
	if err != nil {
		return false, fmt.Errorf("create temp copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmpPath)
		return false, fmt.Errorf("copy: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return false, fmt.Errorf("close temp copy: %w", err)
	}
	if err := fsutil.RenameNoReplace(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		if errors.Is(err, fs.ErrExist) {
			return true, nil
		}
		return false, fmt.Errorf("publish copy: %w", err)
	}
	return false, nil
}
