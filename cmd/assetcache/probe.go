package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meigma/assetcache/internal/pathutil"
	"github.com/meigma/assetcache/link"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check whether hard links work between the shared and job caches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := ctx.configValue()
			jobDir := cfg.JobDir(".probe")
			if err := pathutil.EnsureDir(jobDir, 0o750); err != nil {
				return err
			}
			defer os.RemoveAll(jobDir)

			result := link.NewProbe().Run(cmd.Context(), cfg.SharedDir(), jobDir, ctx.log())
			out := cmd.OutOrStdout()
			if result.Supported {
				fmt.Fprintln(out, "hard links: supported")
				return nil
			}
			fmt.Fprintf(out, "hard links: unavailable (%v); assets will be copied\n", result.Err)
			return nil
		},
	}
}
