// Package postgres implements metadata.Store over PostgreSQL using pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meigma/assetcache/metadata"
)

// Schema creates the assets table the store reads. Deployments that already
// own the table can skip it.
const Schema = `
CREATE TABLE IF NOT EXISTS assets (
  id           TEXT PRIMARY KEY,
  user_id      TEXT NOT NULL,
  bucket_name  TEXT NOT NULL,
  storage_path TEXT NOT NULL,
  file_size    BIGINT NOT NULL,
  mime_type    TEXT NOT NULL DEFAULT '',
  content_hash TEXT,
  image_width  INTEGER,
  image_height INTEGER,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS assets_user_id_idx ON assets (user_id);
`

const bulkFetchSQL = `
SELECT id, bucket_name, storage_path, file_size, mime_type, content_hash, image_width, image_height, created_at
FROM assets
WHERE id = ANY($1) AND user_id = $2;
`

// Querier is the subset of pgxpool.Pool the store uses.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store is a metadata.Store backed by PostgreSQL.
type Store struct {
	db Querier
}

var _ metadata.Store = (*Store)(nil)

// New wraps an existing pool or connection.
func New(db Querier) *Store {
	return &Store{db: db}
}

// Connect opens a pool for databaseURL and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// BulkFetch implements metadata.Store with one ANY($1) query.
func (s *Store) BulkFetch(ctx context.Context, ids []string, userID string) ([]metadata.Asset, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, bulkFetchSQL, ids, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: query assets: %w", err)
	}
	defer rows.Close()

	var assets []metadata.Asset
	for rows.Next() {
		var (
			a    metadata.Asset
			hash *string
		)
		if err := rows.Scan(&a.ID, &a.BucketName, &a.StoragePath, &a.FileSize, &a.MimeType, &hash, &a.ImageWidth, &a.ImageHeight, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan asset: %w", err)
		}
		if hash != nil {
			a.ContentHash = *hash
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate assets: %w", err)
	}
	return assets, nil
}
