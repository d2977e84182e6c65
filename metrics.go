package assetcache

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics is a snapshot of a manager's counters.
type Metrics struct {
	Requested         int64         `json:"requested"`
	Downloaded        int64         `json:"downloaded"`
	BytesDownloaded   int64         `json:"bytesDownloaded"`
	LocalHits         int64         `json:"localHits"`
	SharedHits        int64         `json:"sharedHits"`
	Retries           int64         `json:"retries"`
	DownloadFailures  int64         `json:"downloadFailures"`
	PresignFailures   int64         `json:"presignFailures"`
	RaceLosses        int64         `json:"raceLosses"`
	URLRefreshes      int64         `json:"urlRefreshes"`
	IntegrityFailures int64         `json:"integrityFailures"`
	HardLinks         int64         `json:"hardLinks"`
	CopyFallbacks     int64         `json:"copyFallbacks"`
	PrepareDuration   time.Duration `json:"prepareDuration"`
}

// HitRate returns the share of requested assets served without a download.
func (m Metrics) HitRate() float64 {
	if m.Requested == 0 {
		return 0
	}
	return float64(m.LocalHits+m.SharedHits+m.RaceLosses) / float64(m.Requested)
}

// LogValue implements slog.LogValuer.
func (m Metrics) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("requested", m.Requested),
		slog.Int64("downloaded", m.Downloaded),
		slog.Int64("bytes_downloaded", m.BytesDownloaded),
		slog.Int64("local_hits", m.LocalHits),
		slog.Int64("shared_hits", m.SharedHits),
		slog.Float64("hit_rate", m.HitRate()),
		slog.Int64("retries", m.Retries),
		slog.Int64("download_failures", m.DownloadFailures),
		slog.Int64("presign_failures", m.PresignFailures),
		slog.Int64("race_losses", m.RaceLosses),
		slog.Int64("url_refreshes", m.URLRefreshes),
		slog.Int64("integrity_failures", m.IntegrityFailures),
		slog.Int64("hard_links", m.HardLinks),
		slog.Int64("copy_fallbacks", m.CopyFallbacks),
		slog.Duration("prepare_duration", m.PrepareDuration),
	)
}

// counters is the live, concurrency-safe form of Metrics.
type counters struct {
	requested         atomic.Int64
	downloaded        atomic.Int64
	bytesDownloaded   atomic.Int64
	localHits         atomic.Int64
	sharedHits        atomic.Int64
	retries           atomic.Int64
	downloadFailures  atomic.Int64
	presignFailures   atomic.Int64
	raceLosses        atomic.Int64
	urlRefreshes      atomic.Int64
	integrityFailures atomic.Int64
	hardLinks         atomic.Int64
	copyFallbacks     atomic.Int64
	prepareNanos      atomic.Int64
}

func (c *counters) snapshot() Metrics {
	return Metrics{
		Requested:         c.requested.Load(),
		Downloaded:        c.downloaded.Load(),
		BytesDownloaded:   c.bytesDownloaded.Load(),
		LocalHits:         c.localHits.Load(),
		SharedHits:        c.sharedHits.Load(),
		Retries:           c.retries.Load(),
		DownloadFailures:  c.downloadFailures.Load(),
		PresignFailures:   c.presignFailures.Load(),
		RaceLosses:        c.raceLosses.Load(),
		URLRefreshes:      c.urlRefreshes.Load(),
		IntegrityFailures: c.integrityFailures.Load(),
		HardLinks:         c.hardLinks.Load(),
		CopyFallbacks:     c.copyFallbacks.Load(),
		PrepareDuration:   time.Duration(c.prepareNanos.Load()),
	}
}
