package link

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ProbeResult is the outcome of a hard-link capability probe.
type ProbeResult struct {
	Supported bool
	Err       error
}

// Probe checks once whether hard links work between a shared cache
// directory and a job directory.
//
// The process that bootstraps the cache creates one Probe and hands it to
// every manager; only the first Run does any work. The result is
// informational: LinkOrCopy falls back to copies regardless.
type Probe struct {
	once   sync.Once
	done   atomic.Bool
	link   LinkFunc
	result ProbeResult
}

// NewProbe creates a Probe that uses os.Link.
func NewProbe() *Probe {
	return &Probe{link: os.Link}
}

// NewProbeWithLink creates a Probe that uses fn to link.
func NewProbeWithLink(fn LinkFunc) *Probe {
	return &Probe{link: fn}
}

// Run performs the probe on first call and returns the cached result after.
func (p *Probe) Run(ctx context.Context, sharedDir, jobDir string, logger *slog.Logger) ProbeResult {
	p.once.Do(func() {
		if logger == nil {
			logger = slog.New(slog.DiscardHandler)
		}
		p.result = p.run(sharedDir, jobDir)
		p.done.Store(true)
		if p.result.Supported {
			logger.InfoContext(ctx, "hard links supported between shared and job caches",
				slog.String("shared_dir", sharedDir),
				slog.String("job_dir", jobDir))
			return
		}
		logger.WarnContext(ctx, "hard links unavailable; assets will be copied into job caches",
			slog.String("shared_dir", sharedDir),
			slog.String("job_dir", jobDir),
			slog.Any("error", p.result.Err))
	})
	return p.result
}

// Result returns the probe result and whether Run has completed.
func (p *Probe) Result() (ProbeResult, bool) {
	if !p.done.Load() {
		return ProbeResult{}, false
	}
	return p.result, true
}

func (p *Probe) run(sharedDir, jobDir string) ProbeResult {
	if err := os.MkdirAll(sharedDir, 0o750); err != nil {
		return ProbeResult{Err: fmt.Errorf("create shared dir: %w", err)}
	}
	if err := os.MkdirAll(jobDir, 0o750); err != nil {
		return ProbeResult{Err: fmt.Errorf("create job dir: %w", err)}
	}

	name := ".link-probe-" + uuid.NewString()
	src := filepath.Join(sharedDir, name)
	dst := filepath.Join(jobDir, name)
	payload := []byte(name)

	if err := os.WriteFile(src, payload, 0o600); err != nil {
		return ProbeResult{Err: fmt.Errorf("write probe file: %w", err)}
	}
	defer os.Remove(src)

	if err := p.link(src, dst); err != nil {
		return ProbeResult{Err: err}
	}
	defer os.Remove(dst)

	srcInfo, err := os.Stat(src)
	if err != nil {
		return ProbeResult{Err: err}
	}
	dstInfo, err := os.Stat(dst)
	if err != nil {
		return ProbeResult{Err: err}
	}
	got, err := os.ReadFile(dst) //nolint:gosec // probe path we created
	if err != nil {
		return ProbeResult{Err: err}
	}
	if !os.SameFile(srcInfo, dstInfo) || !bytes.Equal(got, payload) {
		return ProbeResult{Err: errors.New("linked file is not identical to source")}
	}
	return ProbeResult{Supported: true}
}
