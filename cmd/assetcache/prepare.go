package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meigma/assetcache"
	"github.com/meigma/assetcache/link"
)

func newPrepareCommand(ctx *commandContext) *cobra.Command {
	var (
		jobID, userID string
		sqlitePath    string
		databaseURL   string
		storageRoot   string
		showMetrics   bool
	)
	cmd := &cobra.Command{
		Use:   "prepare --job ID --user ID asset-id...",
		Short: "Materialize a job's assets and print its manifest",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobID == "" || userID == "" {
				return errors.New("--job and --user are required")
			}
			cfg := ctx.configValue()
			if sqlitePath != "" {
				cfg.Metadata.SQLitePath = sqlitePath
			}
			if databaseURL != "" {
				cfg.Metadata.DatabaseURL = databaseURL
			}
			if storageRoot != "" {
				cfg.Storage.Root = storageRoot
			}
			if err := cfg.Normalize(); err != nil {
				return err
			}

			store, closeStore, err := ctx.openMetadata(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			objects, err := ctx.openObjectStore()
			if err != nil {
				return err
			}
			if cfg.Storage.BaseURL == "" {
				stop, err := startLocalServer(cmd.Context(), objects)
				if err != nil {
					return err
				}
				defer stop()
			}

			logger := ctx.log()
			opts := append(cfg.Apply(jobID, logger), assetcache.WithLinkProbe(link.NewProbe()))
			m, err := assetcache.New(jobID, userID, store, objects, opts...)
			if err != nil {
				return err
			}
			if m.Janitor() != nil {
				defer m.Janitor().Stop()
			}

			manifest, err := m.Prepare(cmd.Context(), args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(manifest); err != nil {
				return err
			}
			if showMetrics {
				metrics, err := json.MarshalIndent(m.Metrics(), "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), string(metrics))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&jobID, "job", "", "Job ID")
	f.StringVar(&userID, "user", "", "User ID owning the assets")
	f.StringVar(&sqlitePath, "sqlite", "", "SQLite metadata database")
	f.StringVar(&databaseURL, "database-url", "", "PostgreSQL metadata database URL")
	f.StringVar(&storageRoot, "storage-root", "", "Local object store directory")
	f.BoolVar(&showMetrics, "metrics", false, "Print cache metrics to stderr")
	return cmd
}
