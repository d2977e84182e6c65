package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/assetcache/janitor"
)

func newJanitorCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "janitor",
		Short: "Evict expired and excess files from the shared cache",
	}
	cmd.AddCommand(newJanitorRunCommand(ctx))
	cmd.AddCommand(newJanitorOnceCommand(ctx))
	return cmd
}

func newJanitor(ctx *commandContext) (*janitor.Janitor, error) {
	cfg := ctx.configValue()
	return janitor.New(cfg.SharedDir(), cfg.JanitorOptions(ctx.log())...)
}

func newJanitorRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run cleanup cycles until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, err := newJanitor(ctx)
			if err != nil {
				return err
			}
			j.Start(cmd.Context())
			<-cmd.Context().Done()
			j.Stop()
			return nil
		},
	}
}

func newJanitorOnceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single cleanup cycle and print what it removed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, err := newJanitor(ctx)
			if err != nil {
				return err
			}
			report := j.RunOnce(cmd.Context())
			printReport(cmd.OutOrStdout(), j.Dir(), report)
			if report.Errors > 0 {
				return fmt.Errorf("janitor: %d errors during cleanup", report.Errors)
			}
			return nil
		},
	}
}

func printReport(w io.Writer, dir string, r janitor.Report) {
	if r.Skipped {
		fmt.Fprintf(w, "%s: skipped, another janitor holds the lock\n", dir)
		return
	}
	fmt.Fprintf(w, "%s: scanned %d files (%s)\n", dir, r.Scanned, humanize.IBytes(uint64(r.TotalBytes)))
	fmt.Fprintf(w, "removed %d expired, %d over budget, freed %s\n",
		r.ExpiredRemoved, r.SizeRemoved, humanize.IBytes(uint64(r.RemovedBytes)))
	fmt.Fprintf(w, "remaining %s\n", humanize.IBytes(uint64(max(r.Remaining, 0))))
}
