package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var (
		flags    globalFlags
		profiles profileFlags
		stopProf func() error
	)
	ctx := newCommandContext(&flags)

	rootCmd := &cobra.Command{
		Use:           "assetcache",
		Short:         "Job-scoped asset cache manager",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			stop, err := profiles.start()
			if err != nil {
				return err
			}
			stopProf = stop
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err = ctx.ensureConfig()
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if stopProf == nil {
				return nil
			}
			return stopProf()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Configuration file path")
	pf.StringSliceVar(&flags.envFiles, "env-file", nil, "Environment files to load (default .env)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&flags.cacheRoot, "cache-dir", "", "Cache root holding shared/ and jobs/")
	pf.StringVar(&profiles.cpuProfile, "cpu-profile", "", "Write a CPU profile to this file")
	pf.StringVar(&profiles.memProfile, "mem-profile", "", "Write a heap profile to this file on exit")
	pf.StringVar(&profiles.traceFile, "trace", "", "Write an execution trace to this file")
	_ = pf.MarkHidden("trace")

	rootCmd.AddCommand(newPrepareCommand(ctx))
	rootCmd.AddCommand(newSeedCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newJanitorCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))
	rootCmd.AddCommand(newProbeCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}

// shouldSkipConfig reports whether cmd runs without loading configuration.
func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["skipConfig"] == "true" {
			return true
		}
	}
	return cmd.Name() == "help"
}
