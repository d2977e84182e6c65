package assetcache

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	assethttp "github.com/meigma/assetcache/http"
	"github.com/meigma/assetcache/internal/pathutil"
	"github.com/meigma/assetcache/internal/retry"
	"github.com/meigma/assetcache/janitor"
	"github.com/meigma/assetcache/link"
)

// Option configures a Manager.
type Option func(*Manager) error

// Defaults for a Manager.
const (
	DefaultDownloadConcurrency       = 8
	DefaultMaxJobSizeBytes     int64 = 2 << 30 // 2 GiB
)

// --- Directory Options ---

// WithCacheRoot places the shared cache under root/shared and the job
// cache under root/jobs/<job id>. Defaults to pathutil.DefaultRoot().
func WithCacheRoot(root string) Option {
	return func(m *Manager) error {
		if root == "" {
			return errors.New("assetcache: cache root is empty")
		}
		m.sharedDir = pathutil.SharedDir(root)
		m.jobDir = pathutil.JobDir(root, m.jobID)
		return nil
	}
}

// WithSharedCacheDir overrides the shared cache directory.
func WithSharedCacheDir(dir string) Option {
	return func(m *Manager) error {
		if dir == "" {
			return errors.New("assetcache: shared cache dir is empty")
		}
		m.sharedDir = dir
		return nil
	}
}

// WithJobCacheDir overrides this job's cache directory. The directory is
// owned by the manager and removed by Cleanup.
func WithJobCacheDir(dir string) Option {
	return func(m *Manager) error {
		if dir == "" {
			return errors.New("assetcache: job cache dir is empty")
		}
		m.jobDir = dir
		return nil
	}
}

// --- Limit Options ---

// WithDownloadConcurrency sets the maximum number of parallel downloads.
// Default is 8.
func WithDownloadConcurrency(n int) Option {
	return func(m *Manager) error {
		if n < 1 {
			return fmt.Errorf("assetcache: download concurrency must be >= 1, got %d", n)
		}
		m.concurrency = n
		return nil
	}
}

// WithMaxJobSizeBytes caps the summed file size of one Prepare call.
// Default is 2 GiB. Zero or negative disables the cap.
func WithMaxJobSizeBytes(n int64) Option {
	return func(m *Manager) error {
		m.maxJobSize = n
		return nil
	}
}

// WithSignedURLTTL sets the lifetime requested for signed download URLs.
// Default is storage.DefaultSignedURLTTL.
func WithSignedURLTTL(ttl time.Duration) Option {
	return func(m *Manager) error {
		if ttl <= 0 {
			return fmt.Errorf("assetcache: signed URL TTL must be > 0, got %s", ttl)
		}
		m.urlTTL = ttl
		return nil
	}
}

// WithRetryPolicy replaces the download retry schedule. The classifier
// and callback are always supplied by the manager.
func WithRetryPolicy(p retry.Policy) Option {
	return func(m *Manager) error {
		m.retry = p
		return nil
	}
}

// --- Collaborator Options ---

// WithFetcher sets the HTTP fetcher used for downloads.
func WithFetcher(f *assethttp.Fetcher) Option {
	return func(m *Manager) error {
		if f != nil {
			m.fetcher = f
		}
		return nil
	}
}

// WithMaterializer sets the link/copy materializer.
func WithMaterializer(mat *link.Materializer) Option {
	return func(m *Manager) error {
		if mat != nil {
			m.materializer = mat
		}
		return nil
	}
}

// WithLinkFunc replaces os.Link in the default materializer.
// Ignored when WithMaterializer is also given.
func WithLinkFunc(fn link.LinkFunc) Option {
	return func(m *Manager) error {
		m.linkFunc = fn
		return nil
	}
}

// WithLinkProbe runs p against the shared and job directories on the first
// Prepare that downloads or materializes anything. Share one Probe across
// managers to probe once per process.
func WithLinkProbe(p *link.Probe) Option {
	return func(m *Manager) error {
		m.probe = p
		return nil
	}
}

// --- Janitor Options ---

// WithJanitor makes the manager start and own a janitor over its shared
// cache directory. The janitor starts on the first Prepare and stops on
// Cleanup.
func WithJanitor(opts ...janitor.Option) Option {
	return func(m *Manager) error {
		m.janitorEnabled = true
		m.janitorOpts = append(m.janitorOpts, opts...)
		return nil
	}
}

// --- Observability Options ---

// WithLogger sets a logger for the manager and its collaborators.
// If nil, a discard logger is used (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		m.logger = logger
		return nil
	}
}

// WithClock overrides the time source for manifest timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) error {
		if now == nil {
			return errors.New("assetcache: clock is nil")
		}
		m.now = now
		return nil
	}
}
