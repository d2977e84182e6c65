// Package sqlite implements metadata.Store over a local SQLite database.
//
// It backs local development and the CLI, where a managed PostgreSQL
// instance is not available.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register the "sqlite" driver

	"github.com/meigma/assetcache/metadata"
)

const schema = `
CREATE TABLE IF NOT EXISTS assets (
  id           TEXT PRIMARY KEY,
  user_id      TEXT NOT NULL,
  bucket_name  TEXT NOT NULL,
  storage_path TEXT NOT NULL,
  file_size    INTEGER NOT NULL,
  mime_type    TEXT NOT NULL DEFAULT '',
  content_hash TEXT,
  image_width  INTEGER,
  image_height INTEGER,
  created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS assets_user_id ON assets (user_id);
`

// Store is a metadata.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

var _ metadata.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Put inserts or replaces an asset row owned by userID.
func (s *Store) Put(ctx context.Context, userID string, a metadata.Asset) error {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO assets
  (id, user_id, bucket_name, storage_path, file_size, mime_type, content_hash, image_width, image_height, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, userID, a.BucketName, a.StoragePath, a.FileSize, a.MimeType,
		nullString(a.ContentHash), nullInt(a.ImageWidth), nullInt(a.ImageHeight),
		createdAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: put asset %s: %w", a.ID, err)
	}
	return nil
}

// BulkFetch implements metadata.Store with a single IN query.
func (s *Store) BulkFetch(ctx context.Context, ids []string, userID string) ([]metadata.Asset, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := s.db.QueryContext(ctx, `
SELECT id, bucket_name, storage_path, file_size, mime_type, content_hash, image_width, image_height, created_at
FROM assets
WHERE user_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query assets: %w", err)
	}
	defer rows.Close()

	var assets []metadata.Asset
	for rows.Next() {
		var (
			a             metadata.Asset
			hash          sql.NullString
			width, height sql.NullInt64
			createdMs     int64
		)
		if err := rows.Scan(&a.ID, &a.BucketName, &a.StoragePath, &a.FileSize, &a.MimeType, &hash, &width, &height, &createdMs); err != nil {
			return nil, fmt.Errorf("sqlite: scan asset: %w", err)
		}
		a.ContentHash = hash.String
		a.ImageWidth = intPtr(width)
		a.ImageHeight = intPtr(height)
		a.CreatedAt = time.UnixMilli(createdMs).UTC()
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate assets: %w", err)
	}
	return assets, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
