package assetcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	assethttp "github.com/meigma/assetcache/http"
	"github.com/meigma/assetcache/internal/pathutil"
	"github.com/meigma/assetcache/internal/retry"
	"github.com/meigma/assetcache/janitor"
	"github.com/meigma/assetcache/link"
	"github.com/meigma/assetcache/manifest"
	"github.com/meigma/assetcache/metadata"
	"github.com/meigma/assetcache/storage"
)

// Manifest is the per-job asset manifest.
type Manifest = manifest.Manifest

// CachedAsset is one asset materialized in the job cache directory.
type CachedAsset = manifest.CachedAsset

const dirPerm = 0o750

// Manager prepares the assets of one rendering job.
//
// A Manager is safe for concurrent use, although Prepare is normally
// called once per job. Concurrent Prepare calls share downloads of the
// same content; a call whose context ends does not fail the others.
// The shared cache directory may be used by any number of managers in
// any number of processes.
type Manager struct {
	jobID  string
	userID string

	// Collaborators
	store        metadata.Store
	signer       storage.Signer
	fetcher      *assethttp.Fetcher
	materializer *link.Materializer
	linkFunc     link.LinkFunc
	probe        *link.Probe
	manifests    *manifest.Store

	// Janitor
	janitor        *janitor.Janitor
	janitorEnabled bool
	janitorOpts    []janitor.Option

	// Settings
	sharedDir   string
	jobDir      string
	concurrency int
	maxJobSize  int64
	urlTTL      time.Duration
	retry       retry.Policy
	logger      *slog.Logger
	now         func() time.Time

	metrics counters
	flight  singleflight.Group

	urlMu sync.Mutex
	urls  map[string]string // asset ID -> signed URL

	mu     sync.RWMutex
	assets map[string]CachedAsset
}

// New creates a Manager for jobID acting on behalf of userID.
//
// Without directory options the cache lives under pathutil.DefaultRoot().
// Nothing is created on disk until Prepare needs it.
func New(jobID, userID string, store metadata.Store, signer storage.Signer, opts ...Option) (*Manager, error) {
	switch {
	case jobID == "":
		return nil, errors.New("assetcache: job id is empty")
	case userID == "":
		return nil, errors.New("assetcache: user id is empty")
	case store == nil:
		return nil, errors.New("assetcache: metadata store is nil")
	case signer == nil:
		return nil, errors.New("assetcache: signer is nil")
	}

	root := pathutil.DefaultRoot()
	m := &Manager{
		jobID:       jobID,
		userID:      userID,
		store:       store,
		signer:      signer,
		sharedDir:   pathutil.SharedDir(root),
		jobDir:      pathutil.JobDir(root, jobID),
		concurrency: DefaultDownloadConcurrency,
		maxJobSize:  DefaultMaxJobSizeBytes,
		urlTTL:      storage.DefaultSignedURLTTL,
		retry:       retry.DefaultPolicy(),
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
		urls:        make(map[string]string),
		assets:      make(map[string]CachedAsset),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}

	var err error
	if m.sharedDir, err = filepath.Abs(m.sharedDir); err != nil {
		return nil, fmt.Errorf("assetcache: resolve shared cache dir: %w", err)
	}
	if m.jobDir, err = filepath.Abs(m.jobDir); err != nil {
		return nil, fmt.Errorf("assetcache: resolve job cache dir: %w", err)
	}

	if m.fetcher == nil {
		m.fetcher = assethttp.NewFetcher()
	}
	if m.materializer == nil {
		m.materializer = link.New(link.WithLinkFunc(m.linkFunc), link.WithLogger(m.logger))
	}
	m.manifests = manifest.NewStore(m.jobDir)

	if m.janitorEnabled {
		jopts := append([]janitor.Option{
			janitor.WithLogger(m.logger),
			janitor.WithLockFile(filepath.Join(m.sharedDir, janitor.LockFileName)),
		}, m.janitorOpts...)
		m.janitor, err = janitor.New(m.sharedDir, jopts...)
		if err != nil {
			return nil, fmt.Errorf("assetcache: %w", err)
		}
	}
	return m, nil
}

// JobID returns the job this manager prepares.
func (m *Manager) JobID() string { return m.jobID }

// SharedDir returns the absolute shared cache directory.
func (m *Manager) SharedDir() string { return m.sharedDir }

// JobDir returns the absolute job cache directory.
func (m *Manager) JobDir() string { return m.jobDir }

// ManifestPath returns where Prepare writes the manifest.
func (m *Manager) ManifestPath() string { return m.manifests.Path() }

// Janitor returns the janitor owned by this manager, or nil.
func (m *Manager) Janitor() *janitor.Janitor { return m.janitor }

// Prepare makes every asset in ids available in the job cache directory
// and returns the manifest describing them.
//
// Duplicate and blank IDs are ignored. An empty request returns an empty
// manifest without touching disk. Otherwise the manifest is written to
// ManifestPath only after every asset is in place. When any asset fails,
// all others still settle and an *IncompleteError names every missing
// asset and wraps each asset's *AssetError; no manifest is written.
func (m *Manager) Prepare(ctx context.Context, ids []string) (_ *Manifest, err error) {
	began := time.Now()
	defer func() {
		m.metrics.prepareNanos.Add(int64(time.Since(began)))
		m.logCompletion(ctx, err)
	}()

	ids = metadata.Dedupe(ids)
	m.metrics.requested.Add(int64(len(ids)))
	createdAt := m.now()
	if len(ids) == 0 {
		return manifest.Empty(m.jobID, createdAt), nil
	}

	assets, err := m.store.BulkFetch(ctx, ids, m.userID)
	if err != nil {
		return nil, fmt.Errorf("assetcache: fetch metadata: %w", err)
	}
	v := metadata.Validate(ids, assets, m.maxJobSize)
	for _, w := range v.Warnings {
		m.logger.WarnContext(ctx, "asset validation warning",
			slog.String("job_id", m.jobID), slog.String("warning", w))
	}
	if !v.Valid {
		return nil, &ValidationError{Errors: v.Errors, Warnings: v.Warnings}
	}

	if err := pathutil.EnsureDir(m.sharedDir, dirPerm); err != nil {
		return nil, fmt.Errorf("assetcache: shared cache dir: %w", err)
	}
	if err := pathutil.EnsureDir(m.jobDir, dirPerm); err != nil {
		return nil, fmt.Errorf("assetcache: job cache dir: %w", err)
	}
	if m.probe != nil {
		m.probe.Run(ctx, m.sharedDir, m.jobDir, m.logger)
	}
	if m.janitor != nil {
		m.janitor.Start(context.WithoutCancel(ctx))
	}

	byID := make(map[string]metadata.Asset, len(assets))
	for _, a := range assets {
		byID[a.ID] = a
	}

	var (
		mu       sync.Mutex
		prepared = make(map[string]CachedAsset, len(ids))
		failed   = make(map[string]error)
	)
	// Every task settles before completeness is judged, so one failure
	// does not hide the others.
	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for _, id := range ids {
		if ca, ok := m.localHit(id); ok {
			m.metrics.localHits.Add(1)
			mu.Lock()
			prepared[id] = ca
			mu.Unlock()
			continue
		}
		a := byID[id]
		g.Go(func() error {
			ca, err := m.prepareAsset(ctx, a)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[id] = err
				return nil
			}
			prepared[id] = ca
			return nil
		})
	}
	_ = g.Wait()

	if missing := missingAssets(ids, prepared); len(missing) > 0 {
		errs := make([]error, 0, len(failed))
		for _, id := range missing {
			if err, ok := failed[id]; ok {
				errs = append(errs, err)
			}
		}
		return nil, &IncompleteError{Missing: missing, Errors: errs}
	}

	man := manifest.New(m.jobID, createdAt, m.now(), prepared)
	if err := m.manifests.Persist(man); err != nil {
		return nil, fmt.Errorf("assetcache: persist manifest: %w", err)
	}

	m.mu.Lock()
	for id, ca := range prepared {
		m.assets[id] = ca
	}
	m.mu.Unlock()
	return man, nil
}

// localHit returns the entry from an earlier Prepare when its job file is
// still in place.
func (m *Manager) localHit(id string) (CachedAsset, bool) {
	m.mu.RLock()
	ca, ok := m.assets[id]
	m.mu.RUnlock()
	if !ok {
		return CachedAsset{}, false
	}
	info, err := os.Stat(ca.LocalPath)
	if err != nil || info.Size() != ca.Size {
		return CachedAsset{}, false
	}
	return ca, true
}

// missingAssets lists requested IDs with no entry or no file on disk.
func missingAssets(ids []string, prepared map[string]CachedAsset) []string {
	var missing []string
	for _, id := range ids {
		ca, ok := prepared[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		if _, err := os.Stat(ca.LocalPath); err != nil {
			missing = append(missing, id)
		}
	}
	return missing
}

// Asset returns the cache entry for id from a completed Prepare.
func (m *Manager) Asset(id string) (CachedAsset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ca, ok := m.assets[id]
	return ca, ok
}

// Metrics returns a snapshot of the manager's counters.
func (m *Manager) Metrics() Metrics {
	return m.metrics.snapshot()
}

// Cleanup stops the owned janitor and removes the job cache directory.
// Failures are logged, never returned, so cleanup cannot mask the job's
// own result. The shared cache is left in place.
func (m *Manager) Cleanup(ctx context.Context) {
	if m.janitor != nil {
		m.janitor.Stop()
	}
	if err := os.RemoveAll(m.jobDir); err != nil {
		m.logger.WarnContext(ctx, "remove job cache dir failed",
			slog.String("job_id", m.jobID),
			slog.String("dir", m.jobDir),
			slog.Any("error", err))
	}
	m.mu.Lock()
	clear(m.assets)
	m.mu.Unlock()
}

func (m *Manager) logCompletion(ctx context.Context, err error) {
	attrs := []slog.Attr{
		slog.String("job_id", m.jobID),
		slog.Any("metrics", m.Metrics()),
	}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
		m.logger.LogAttrs(ctx, slog.LevelError, "asset preparation failed", attrs...)
		return
	}
	m.logger.LogAttrs(ctx, slog.LevelInfo, "asset preparation complete", attrs...)
}
