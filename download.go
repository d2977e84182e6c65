package assetcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	assethttp "github.com/meigma/assetcache/http"
	"github.com/meigma/assetcache/internal/fsutil"
	"github.com/meigma/assetcache/internal/retry"
	"github.com/meigma/assetcache/metadata"
)

// prepareAsset ensures a's bytes are in the shared cache and places them in
// the job directory.
func (m *Manager) prepareAsset(ctx context.Context, a metadata.Asset) (CachedAsset, error) {
	key := cacheKeyFor(a)
	sharedPath := filepath.Join(m.sharedDir, key.name)
	jobPath := filepath.Join(m.jobDir, key.name)

	verified, err := m.ensureShared(ctx, a, key, sharedPath)
	if err != nil {
		return CachedAsset{}, &AssetError{AssetID: a.ID, Err: err}
	}

	res, err := m.materializer.LinkOrCopy(sharedPath, jobPath)
	if err != nil {
		return CachedAsset{}, &AssetError{AssetID: a.ID, Err: err}
	}
	switch {
	case !res.Linked:
		m.metrics.copyFallbacks.Add(1)
	case !res.Existed:
		m.metrics.hardLinks.Add(1)
	}

	m.logger.DebugContext(ctx, "asset ready",
		slog.String("asset_id", a.ID),
		slog.String("path", jobPath),
		slog.Bool("verified", verified),
		slog.Bool("linked", res.Linked))

	return CachedAsset{
		AssetID:     a.ID,
		LocalPath:   jobPath,
		ContentHash: key.hash,
		Size:        a.FileSize,
		ContentType: a.MimeType,
		Width:       a.ImageWidth,
		Height:      a.ImageHeight,
		Verified:    verified,
	}, nil
}

// fill reports how a shared cache entry came to exist.
type fill int

const (
	fillDownloaded fill = iota // published by this manager
	fillRaceLost               // published concurrently by another writer
	fillExisting               // present before the download started
)

// ensureShared makes sharedPath hold a's bytes. verified is true when an
// existing entry satisfied the request.
func (m *Manager) ensureShared(ctx context.Context, a metadata.Asset, key cacheKey, sharedPath string) (bool, error) {
	if m.sharedHit(ctx, sharedPath, a.FileSize) {
		m.metrics.sharedHits.Add(1)
		return true, nil
	}

	// Assets with identical content share one download. A follower whose
	// leader was cancelled retries under its own context.
	for {
		leader := false
		ch := m.flight.DoChan(key.name, func() (any, error) {
			leader = true
			if m.sharedHit(ctx, sharedPath, a.FileSize) {
				return fillExisting, nil
			}
			return m.download(ctx, a, key, sharedPath)
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case res = <-ch:
		}
		if res.Err != nil {
			if !leader && ctx.Err() == nil && isContextErr(res.Err) {
				continue
			}
			return false, res.Err
		}
		how := res.Val.(fill)
		if !leader || how == fillExisting {
			m.metrics.sharedHits.Add(1)
			return true, nil
		}
		return how == fillRaceLost, nil
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// sharedHit reports whether path is a regular file of exactly size bytes.
// An entry of the wrong size is removed so it can be replaced.
func (m *Manager) sharedHit(ctx context.Context, path string, size int64) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.Mode().IsRegular() && info.Size() == size {
		return true
	}
	m.logger.WarnContext(ctx, "discarding shared cache entry with unexpected size",
		slog.String("path", path),
		slog.Int64("size", info.Size()),
		slog.Int64("expected", size))
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.WarnContext(ctx, "remove shared cache entry failed",
			slog.String("path", path), slog.Any("error", err))
	}
	return false
}

// download fetches a into the shared cache under the retry policy.
func (m *Manager) download(ctx context.Context, a metadata.Asset, key cacheKey, sharedPath string) (fill, error) {
	policy := m.retry
	policy.Classify = classify
	policy.OnRetry = func(ev retry.Event) {
		m.metrics.retries.Add(1)
		if ev.Decision == retry.Refresh {
			m.invalidateURL(a.ID)
			m.metrics.urlRefreshes.Add(1)
		}
		m.logger.WarnContext(ctx, "asset download failed, retrying",
			slog.String("asset_id", a.ID),
			slog.Int("attempt", ev.Attempt),
			slog.String("decision", ev.Decision.String()),
			slog.Duration("delay", ev.Delay),
			slog.Any("error", ev.Err))
	}

	var raceLost bool
	err := retry.Do(ctx, policy, func(ctx context.Context, _ int) error {
		lost, err := m.fetchOnce(ctx, a, key, sharedPath)
		if err != nil {
			return err
		}
		raceLost = lost
		return nil
	})
	if err != nil {
		return fillDownloaded, err
	}
	if raceLost {
		m.metrics.raceLosses.Add(1)
		m.logger.DebugContext(ctx, "shared cache entry published by another writer",
			slog.String("asset_id", a.ID), slog.String("path", sharedPath))
		return fillRaceLost, nil
	}
	m.metrics.downloaded.Add(1)
	return fillDownloaded, nil
}

// classify decides how a failed attempt is retried.
func classify(err error) retry.Decision {
	switch {
	case isContextErr(err):
		return retry.Abort
	case errors.Is(err, assethttp.ErrForbidden):
		return retry.Refresh
	default:
		return retry.Retry
	}
}

// fetchOnce performs one download attempt: sign, stream to a temp file,
// verify and publish without replacing an existing entry.
func (m *Manager) fetchOnce(ctx context.Context, a metadata.Asset, key cacheKey, sharedPath string) (raceLost bool, err error) {
	url, err := m.signedURL(ctx, a)
	if err != nil {
		if ctx.Err() == nil {
			m.metrics.presignFailures.Add(1)
		}
		return false, fmt.Errorf("%w: %w", ErrPresign, err)
	}

	resp, err := m.fetcher.Get(ctx, url)
	if err != nil {
		if ctx.Err() == nil {
			m.metrics.downloadFailures.Add(1)
		}
		return false, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	defer resp.Body.Close()

	tmpPath := filepath.Join(m.sharedDir, "."+key.name+"."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640) //nolint:gosec // tmpPath is derived from the cache dir
	if err != nil {
		m.metrics.downloadFailures.Add(1)
		return false, fmt.Errorf("%w: create temp file: %w", ErrDownload, err)
	}
	published := false
	defer func() {
		if !published {
			_ = os.Remove(tmpPath)
		}
	}()

	var (
		w        io.Writer = f
		digester digest.Digester
	)
	if key.digest != "" {
		digester = key.digest.Algorithm().Digester()
		w = io.MultiWriter(f, digester.Hash())
	}

	// Read one byte past the expected size so oversized bodies are caught.
	n, copyErr := io.Copy(w, io.LimitReader(resp.Body, a.FileSize+1))
	closeErr := f.Close()
	if copyErr != nil {
		if ctx.Err() == nil {
			m.metrics.downloadFailures.Add(1)
		}
		return false, fmt.Errorf("%w: read body: %w", ErrDownload, copyErr)
	}
	if closeErr != nil {
		m.metrics.downloadFailures.Add(1)
		return false, fmt.Errorf("%w: write temp file: %w", ErrDownload, closeErr)
	}
	if n != a.FileSize {
		m.metrics.downloadFailures.Add(1)
		return false, fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, n, a.FileSize)
	}
	if digester != nil {
		if got := digester.Digest(); got != key.digest {
			m.metrics.integrityFailures.Add(1)
			return false, fmt.Errorf("%w: got %s, want %s", ErrIntegrity, got, key.digest)
		}
	}
	m.metrics.bytesDownloaded.Add(n)

	if err := fsutil.RenameNoReplace(tmpPath, sharedPath); err != nil {
		if !errors.Is(err, fs.ErrExist) {
			m.metrics.downloadFailures.Add(1)
			return false, fmt.Errorf("%w: publish: %w", ErrDownload, err)
		}
		if !m.sharedHit(ctx, sharedPath, a.FileSize) {
			m.metrics.downloadFailures.Add(1)
			return false, fmt.Errorf("%w: conflicting shared cache entry %s", ErrDownload, sharedPath)
		}
		return true, nil
	}
	published = true
	return false, nil
}

// signedURL returns the cached signed URL for a, issuing one if needed.
func (m *Manager) signedURL(ctx context.Context, a metadata.Asset) (string, error) {
	m.urlMu.Lock()
	url, ok := m.urls[a.ID]
	m.urlMu.Unlock()
	if ok {
		return url, nil
	}

	url, err := m.signer.CreateSignedURL(ctx, a.BucketName, a.StoragePath, m.urlTTL)
	if err != nil {
		return "", err
	}
	m.urlMu.Lock()
	m.urls[a.ID] = url
	m.urlMu.Unlock()
	return url, nil
}

func (m *Manager) invalidateURL(assetID string) {
	m.urlMu.Lock()
	delete(m.urls, assetID)
	m.urlMu.Unlock()
}
