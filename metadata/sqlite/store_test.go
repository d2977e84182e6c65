package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/assetcache/metadata"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBulkFetchScopesByUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)

	w, h := 640, 480
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.Put(ctx, "alice", metadata.Asset{
		ID: "img", BucketName: "assets", StoragePath: "alice/img.png", FileSize: 42,
		MimeType: "image/png", ContentHash: "abc", ImageWidth: &w, ImageHeight: &h, CreatedAt: created,
	}))
	require.NoError(t, s.Put(ctx, "alice", metadata.Asset{
		ID: "clip", BucketName: "assets", StoragePath: "alice/clip.mp4", FileSize: 7, CreatedAt: created,
	}))
	require.NoError(t, s.Put(ctx, "bob", metadata.Asset{
		ID: "secret", BucketName: "assets", StoragePath: "bob/s.bin", FileSize: 1, CreatedAt: created,
	}))

	assets, err := s.BulkFetch(ctx, []string{"img", "clip", "secret", "nope"}, "alice")
	require.NoError(t, err)
	require.Len(t, assets, 2)

	byID := map[string]metadata.Asset{}
	for _, a := range assets {
		byID[a.ID] = a
	}
	img := byID["img"]
	assert.Equal(t, "alice/img.png", img.StoragePath)
	assert.Equal(t, int64(42), img.FileSize)
	assert.Equal(t, "abc", img.ContentHash)
	require.NotNil(t, img.ImageWidth)
	assert.Equal(t, 640, *img.ImageWidth)
	assert.True(t, created.Equal(img.CreatedAt))

	clip := byID["clip"]
	assert.Empty(t, clip.ContentHash)
	assert.Nil(t, clip.ImageWidth)
	assert.Nil(t, clip.ImageHeight)
}

func TestBulkFetchEmpty(t *testing.T) {
	t.Parallel()

	assets, err := openTestStore(t).BulkFetch(context.Background(), nil, "alice")
	require.NoError(t, err)
	assert.Empty(t, assets)
}
