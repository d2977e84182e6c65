package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/assetcache/janitor"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show shared cache usage against the eviction budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := ctx.configValue()
			j, err := janitor.New(cfg.SharedDir(), cfg.JanitorOptions(ctx.log())...)
			if err != nil {
				return err
			}
			stats, err := j.Scan()
			if err != nil {
				return err
			}
			limits := j.Config()

			rows := [][]string{
				{"directory", stats.Dir},
				{"files", strconv.Itoa(stats.Files)},
				{"in-flight downloads", strconv.Itoa(stats.TempFiles)},
				{"size", humanize.IBytes(uint64(stats.TotalBytes))},
				{"budget", humanize.IBytes(uint64(limits.MaxTotalBytes))},
				{"max age", limits.MaxFileAge.String()},
			}
			if stats.Files > 0 {
				rows = append(rows,
					[]string{"oldest", humanize.Time(stats.Oldest)},
					[]string{"newest", humanize.Time(stats.Newest)},
				)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Shared cache", ""}, rows, []columnAlignment{alignLeft, alignRight}, isTerminal(out)))
			return nil
		},
	}
}
