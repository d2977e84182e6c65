// Package manifest defines the per-job asset manifest the renderer consumes
// and persists it atomically in the job cache directory.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Version is the manifest schema version written by this package.
const Version = "1.0"

// FileName is the manifest's name inside the job cache directory.
const FileName = "manifest.json"

// ErrInvalid is returned when a manifest fails consistency checks.
var ErrInvalid = errors.New("manifest: invalid")

// CachedAsset is one asset materialized in the job cache directory.
type CachedAsset struct {
	AssetID     string `json:"assetId"`
	LocalPath   string `json:"localPath"`
	ContentHash string `json:"contentHash"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
	Width       *int   `json:"width,omitempty"`
	Height      *int   `json:"height,omitempty"`
	// Verified is true when the asset came from an existing shared cache
	// entry and false when it was downloaded by this preparation.
	Verified bool `json:"verified"`
}

// Manifest maps every asset of a job to its local file.
type Manifest struct {
	JobID       string                 `json:"jobId"`
	Version     string                 `json:"version"`
	TotalBytes  int64                  `json:"totalBytes"`
	CreatedAt   time.Time              `json:"createdAt"`
	CompletedAt time.Time              `json:"completedAt"`
	Assets      map[string]CachedAsset `json:"assets"`
}

// Empty returns a manifest with no assets. It touches nothing on disk.
func Empty(jobID string, now time.Time) *Manifest {
	now = now.UTC()
	return &Manifest{
		JobID:       jobID,
		Version:     Version,
		CreatedAt:   now,
		CompletedAt: now,
		Assets:      map[string]CachedAsset{},
	}
}

// New builds a manifest from assets, computing TotalBytes.
func New(jobID string, createdAt, completedAt time.Time, assets map[string]CachedAsset) *Manifest {
	m := &Manifest{
		JobID:       jobID,
		Version:     Version,
		CreatedAt:   createdAt.UTC(),
		CompletedAt: completedAt.UTC(),
		Assets:      make(map[string]CachedAsset, len(assets)),
	}
	for id, a := range assets {
		m.Assets[id] = a
		m.TotalBytes += a.Size
	}
	return m
}

// IDs returns the asset IDs in sorted order.
func (m *Manifest) IDs() []string {
	ids := make([]string, 0, len(m.Assets))
	for id := range m.Assets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks that the manifest is internally consistent.
func (m *Manifest) Validate() error {
	if m.JobID == "" {
		return fmt.Errorf("%w: empty job id", ErrInvalid)
	}
	if m.Version != Version {
		return fmt.Errorf("%w: unsupported version %q", ErrInvalid, m.Version)
	}
	var total int64
	for id, a := range m.Assets {
		if a.AssetID != id {
			return fmt.Errorf("%w: key %q holds asset %q", ErrInvalid, id, a.AssetID)
		}
		if !filepath.IsAbs(a.LocalPath) {
			return fmt.Errorf("%w: asset %q has relative path %q", ErrInvalid, id, a.LocalPath)
		}
		total += a.Size
	}
	if total != m.TotalBytes {
		return fmt.Errorf("%w: totalBytes %d, assets sum to %d", ErrInvalid, m.TotalBytes, total)
	}
	return nil
}

// Store reads and writes the manifest of one job cache directory.
type Store struct {
	fs  afero.Fs
	dir string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithFs sets the filesystem. Defaults to the OS filesystem.
func WithFs(fsys afero.Fs) StoreOption {
	return func(s *Store) {
		s.fs = fsys
	}
}

// NewStore returns a Store for the job cache directory dir.
func NewStore(dir string, opts ...StoreOption) *Store {
	s := &Store{fs: afero.NewOsFs(), dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the manifest file path.
func (s *Store) Path() string {
	return filepath.Join(s.dir, FileName)
}

// Persist writes m as indented JSON. The document is written to a temporary
// file and renamed into place, so readers see either the previous manifest
// or the complete new one.
func (s *Store) Persist(m *Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: marshal: %w", err)
	}
	data = append(data, '\n')

	if err := s.fs.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("manifest: create dir: %w", err)
	}
	tmp := filepath.Join(s.dir, "."+FileName+"."+uuid.NewString()+".tmp")
	if err := afero.WriteFile(s.fs, tmp, data, 0o640); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("manifest: write: %w", err)
	}
	if err := s.fs.Rename(tmp, s.Path()); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("manifest: publish: %w", err)
	}
	return nil
}

// Load reads and validates the manifest. A missing file matches fs.ErrNotExist.
func (s *Store) Load() (*Manifest, error) {
	data, err := afero.ReadFile(s.fs, s.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("manifest: %s: %w", s.Path(), fs.ErrNotExist)
		}
		return nil, fmt.Errorf("manifest: read: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalid, err)
	}
	if m.Assets == nil {
		m.Assets = map[string]CachedAsset{}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
