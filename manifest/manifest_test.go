package manifest

import (
	"encoding/json"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleManifest() *Manifest {
	w, h := 100, 200
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return New("job-1", created, created.Add(time.Second), map[string]CachedAsset{
		"a": {AssetID: "a", LocalPath: "/cache/jobs/job-1/a.png", ContentHash: "aa", Size: 10, ContentType: "image/png", Width: &w, Height: &h, Verified: true},
		"b": {AssetID: "b", LocalPath: "/cache/jobs/job-1/b.bin", ContentHash: "bb", Size: 5, ContentType: "application/octet-stream"},
	})
}

func TestEmpty(t *testing.T) {
	t.Parallel()

	m := Empty("job", time.Now())
	assert.Equal(t, Version, m.Version)
	assert.Empty(t, m.Assets)
	assert.NotNil(t, m.Assets)
	assert.Zero(t, m.TotalBytes)
	assert.NoError(t, m.Validate())
}

func TestPersistLoadRoundTrip(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	store := NewStore("/cache/jobs/job-1", WithFs(fsys))
	m := sampleManifest()

	require.NoError(t, store.Persist(m))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, m, got)

	entries, err := afero.ReadDir(fsys, "/cache/jobs/job-1")
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must not be left behind")
	assert.Equal(t, FileName, entries[0].Name())
}

func TestPersistWritesContractFields(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	store := NewStore("/job", WithFs(fsys))
	require.NoError(t, store.Persist(sampleManifest()))

	data, err := afero.ReadFile(fsys, store.Path())
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "\n  \"jobId\""), "manifest is indented")

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{"jobId", "version", "totalBytes", "createdAt", "completedAt", "assets"} {
		assert.Contains(t, doc, key)
	}
	assert.Equal(t, "1.0", doc["version"])
	assert.Equal(t, float64(15), doc["totalBytes"])

	assets := doc["assets"].(map[string]any)
	b := assets["b"].(map[string]any)
	assert.NotContains(t, b, "width", "nil dimensions are omitted")
	assert.Equal(t, false, b["verified"])
	a := assets["a"].(map[string]any)
	assert.Equal(t, float64(100), a["width"])
}

func TestPersistRejectsInconsistentManifest(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	store := NewStore("/job", WithFs(fsys))

	m := sampleManifest()
	m.TotalBytes = 1
	assert.ErrorIs(t, store.Persist(m), ErrInvalid)

	m = sampleManifest()
	a := m.Assets["a"]
	a.AssetID = "other"
	m.Assets["a"] = a
	assert.ErrorIs(t, store.Persist(m), ErrInvalid)

	m = sampleManifest()
	a = m.Assets["a"]
	a.LocalPath = "relative/a.png"
	m.Assets["a"] = a
	assert.ErrorIs(t, store.Persist(m), ErrInvalid)

	exists, err := afero.Exists(fsys, store.Path())
	require.NoError(t, err)
	assert.False(t, exists, "invalid manifests are never written")
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()

	_, err := NewStore("/nope", WithFs(afero.NewMemMapFs())).Load()
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLoadCorrupt(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	store := NewStore("/job", WithFs(fsys))
	require.NoError(t, afero.WriteFile(fsys, store.Path(), []byte("{not json"), 0o600))
	_, err := store.Load()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestPersistOnDisk(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "jobs", "job-1")
	store := NewStore(dir)
	require.NoError(t, store.Persist(sampleManifest()))
	got, err := store.Load()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, got.IDs())
}
