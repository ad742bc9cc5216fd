package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"perth/internal/server"
)

func newServeCmd(a **app) *cobra.Command {
	var (
		bench    string
		schedule string
		port     int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with a scheduled model refresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := *a

			refresh := func(ctx context.Context) error {
				_, _, err := runPipeline(ctx, app, bench, app.cfg.LookbackYears, false)
				return err
			}

			if port == 0 {
				port = app.cfg.Port
			}

			srv := server.New(server.Config{
				Port:            port,
				DevMode:         app.cfg.DevMode,
				Benchmark:       bench,
				RefreshSchedule: schedule,
				LookbackYears:   app.cfg.LookbackYears,
			}, app.universe, app.quotes, app.store, app.ingest, refresh, app.log)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (default from config)")
	cmd.Flags().StringVar(&bench, "benchmark", "SPY", "benchmark symbol for refresh jobs")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron schedule for the model refresh (default weekdays 22:00 UTC)")
	return cmd
}
