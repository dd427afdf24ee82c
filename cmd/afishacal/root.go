package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"afishacal/internal/runner"
	"afishacal/internal/scheduler"
)

const defaultConfigPath = "afishacal.yaml"

func newRootCommand() *cobra.Command {
	flags := &cliFlags{}
	ctx := newCommandContext(flags)
	var once bool

	rootCmd := &cobra.Command{
		Use:           "afishacal",
		Short:         "Build an iCalendar feed from the cinema listing",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			r := runner.New(cfg)

			if once || cfg.Schedule == "" {
				sum, err := r.Run(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d events to %s (%d entries, %d skipped, %d filtered, %d duplicates)\n",
					sum.Events, cfg.OutputPath, sum.Entries, sum.Skipped(), sum.Filtered, sum.Duplicates)
				return nil
			}

			return scheduler.Run(cmd.Context(), cfg.Schedule, func(ctx context.Context) {
				_, _ = r.Run(ctx)
			}, scheduler.Options{Location: cfg.Location(), RunImmediately: true})
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", defaultConfigPath, "Configuration file path (created with defaults if missing)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVarP(&flags.output, "output", "o", "", "Calendar output path")
	pf.StringVar(&flags.acceptNationality, "accept-nationality", "", "Keep only films of this nationality")
	pf.StringVar(&flags.excludeNationality, "exclude-nationality", "", "Drop films whose nationality contains this text")
	pf.IntVar(&flags.maxPages, "max-pages", 0, "Listing pages to visit (0 = all)")
	pf.IntVar(&flags.maxMovies, "max-movies", 0, "Films to process (0 = all)")
	pf.BoolVar(&flags.skipDetails, "skip-details", false, "Do not visit film detail pages")
	rootCmd.Flags().BoolVar(&once, "once", false, "Run a single refresh and exit even if a schedule is configured")

	rootCmd.AddCommand(newPreviewCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))

	return rootCmd
}
