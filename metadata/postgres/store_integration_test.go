//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/meigma/assetcache/metadata"
)

// startPostgres starts a postgres:16 container and returns its connection URL.
func startPostgres(t *testing.T) string {
	t.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		t.Skip("SKIP_DOCKER_TESTS is set")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "assets",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://postgres:postgres@%s:%s/assets?sslmode=disable", host, port.Port())
}

func TestBulkFetch(t *testing.T) {
	ctx := context.Background()
	pool, err := Connect(ctx, startPostgres(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, Schema)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
INSERT INTO assets (id, user_id, bucket_name, storage_path, file_size, mime_type, content_hash, image_width, image_height)
VALUES
  ('img',    'alice', 'assets', 'alice/img.png',  42, 'image/png', 'abcd', 640, 480),
  ('clip',   'alice', 'assets', 'alice/clip.mp4', 7,  'video/mp4', NULL,   NULL, NULL),
  ('secret', 'bob',   'assets', 'bob/s.bin',      1,  '',          NULL,   NULL, NULL);
`)
	require.NoError(t, err)

	assets, err := New(pool).BulkFetch(ctx, []string{"img", "clip", "secret", "missing"}, "alice")
	require.NoError(t, err)
	require.Len(t, assets, 2)

	byID := map[string]metadata.Asset{}
	for _, a := range assets {
		byID[a.ID] = a
	}
	assert.Equal(t, "abcd", byID["img"].ContentHash)
	require.NotNil(t, byID["img"].ImageWidth)
	assert.Equal(t, 640, *byID["img"].ImageWidth)
	assert.Empty(t, byID["clip"].ContentHash)
	assert.Nil(t, byID["clip"].ImageHeight)
	assert.False(t, byID["clip"].CreatedAt.IsZero())
}
