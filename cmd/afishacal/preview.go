package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"afishacal/internal/ics"
	appLog "afishacal/internal/log"
	"afishacal/internal/report"
)

func newPreviewCommand(ctx *commandContext) *cobra.Command {
	var file string
	var from string
	var days int
	var showURL bool

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show upcoming films from a generated calendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.OutputPath
			}
			if days <= 0 {
				days = cfg.PreviewDays
			}

			loc := cfg.Location()
			start := time.Now().In(loc)
			if from != "" {
				start, err = time.ParseInLocation("2006-01-02", from, loc)
				if err != nil {
					return fmt.Errorf("parse --from %q: %w", from, err)
				}
			}
			start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)

			res, err := ics.ReadOccurrences(cmd.Context(), file, ics.ExpandConfig{
				DisplayLocation: loc,
				RangeStart:      start,
				RangeEnd:        start.AddDate(0, 0, days),
			})
			if err != nil {
				return fmt.Errorf("preview %s: %w", file, err)
			}
			if len(res.TruncatedEvents) > 0 {
				appLog.Warn("recurrence expansion truncated", "uids", len(res.TruncatedEvents))
			}

			fmt.Fprintln(cmd.OutOrStdout(), report.OccurrenceTable(res.Occurrences, report.Options{ShowURL: showURL}))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Calendar file or http(s) URL to read (default: configured output)")
	cmd.Flags().StringVar(&from, "from", "", "First day of the window, YYYY-MM-DD (default: today)")
	cmd.Flags().IntVarP(&days, "days", "d", 0, "Window length in days (default: preview_days)")
	cmd.Flags().BoolVar(&showURL, "urls", false, "Include film page links")
	return cmd
}
