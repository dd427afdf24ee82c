package main

import (
	"context"
	"sync"

	"github.com/spf13/cobra"

	appLog "afishacal/internal/log"
	"afishacal/internal/runner"
	"afishacal/internal/scheduler"
	"afishacal/internal/web"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var listen string
	var refresh bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Publish the calendar over HTTP, refreshing on the configured schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			r := runner.New(cfg)
			var wg sync.WaitGroup

			if cfg.Schedule != "" {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := scheduler.Run(runCtx, cfg.Schedule, func(ctx context.Context) {
						_, _ = r.Run(ctx)
					}, scheduler.Options{Location: cfg.Location(), RunImmediately: refresh})
					if err != nil {
						appLog.Error("scheduler failed", err)
					}
				}()
			} else if refresh {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = r.Run(runCtx)
				}()
			}

			err = web.StartServer(runCtx, cfg, r, r.Metrics().Gatherer())
			cancel()
			wg.Wait()
			return err
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config)")
	cmd.Flags().BoolVar(&refresh, "refresh", true, "Refresh the calendar once at startup")
	return cmd
}
