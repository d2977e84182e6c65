package main

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/cobra"

	"github.com/meigma/assetcache/metadata"
	"github.com/meigma/assetcache/metadata/sqlite"
)

func newSeedCommand(ctx *commandContext) *cobra.Command {
	var (
		userID, assetID string
		bucket          string
		mimeType        string
		sqlitePath      string
		storageRoot     string
		noHash          bool
	)
	cmd := &cobra.Command{
		Use:   "seed --user ID --id ID file",
		Short: "Upload a file to the local object store and record its metadata in SQLite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" || assetID == "" {
				return errors.New("--user and --id are required")
			}
			cfg := ctx.configValue()
			if sqlitePath != "" {
				cfg.Metadata.SQLitePath = sqlitePath
			}
			if storageRoot != "" {
				cfg.Storage.Root = storageRoot
			}
			if err := cfg.Normalize(); err != nil {
				return err
			}
			if cfg.Metadata.SQLitePath == "" {
				return errors.New("seed writes to SQLite: set metadata.sqlite_path or --sqlite")
			}

			src := args[0]
			data, err := os.ReadFile(src) //nolint:gosec // operator-supplied file
			if err != nil {
				return err
			}
			if mimeType == "" {
				mimeType = mime.TypeByExtension(filepath.Ext(src))
			}
			if mimeType == "" {
				mimeType = "application/octet-stream"
			}

			objects, err := ctx.openObjectStore()
			if err != nil {
				return err
			}
			storagePath := path.Join(userID, assetID+filepath.Ext(src))
			if err := objects.Put(bucket, storagePath, bytes.NewReader(data)); err != nil {
				return err
			}

			store, err := sqlite.Open(cfg.Metadata.SQLitePath)
			if err != nil {
				return err
			}
			defer store.Close()

			a := metadata.Asset{
				ID:          assetID,
				BucketName:  bucket,
				StoragePath: storagePath,
				FileSize:    int64(len(data)),
				MimeType:    mimeType,
				CreatedAt:   time.Now().UTC(),
			}
			if !noHash {
				a.ContentHash = digest.SHA256.FromBytes(data).Encoded()
			}
			if err := store.Put(cmd.Context(), userID, a); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s/%s\t%d bytes\n", a.ID, bucket, storagePath, a.FileSize)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&userID, "user", "", "Owning user ID")
	f.StringVar(&assetID, "id", "", "Asset ID")
	f.StringVar(&bucket, "bucket", "assets", "Bucket name")
	f.StringVar(&mimeType, "mime", "", "MIME type (default from the file extension)")
	f.StringVar(&sqlitePath, "sqlite", "", "SQLite metadata database")
	f.StringVar(&storageRoot, "storage-root", "", "Local object store directory")
	f.BoolVar(&noHash, "no-hash", false, "Do not record a content hash")
	return cmd
}
