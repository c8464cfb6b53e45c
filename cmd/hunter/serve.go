package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/deusflow/shorts-hunter/internal/app"
	"github.com/deusflow/shorts-hunter/internal/logger"
	"github.com/deusflow/shorts-hunter/internal/metrics"
	"github.com/deusflow/shorts-hunter/internal/scheduler"
	"github.com/deusflow/shorts-hunter/internal/server"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var addrFlag string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			addr := addrFlag
			if addr == "" {
				addr = rt.Config.HTTPAddr
			}

			if rt.Config.RunInterval > 0 {
				mode := rt.Config.RunMode
				sched := scheduler.New(rt.Config.RunInterval, func(ctx context.Context) error {
					_, err := rt.Service.Trigger(ctx, app.RunRequest{Mode: mode})
					return err
				}, logger.Logger)
				go sched.Run(ctx)
			}

			srv := server.New(rt.Service, metrics.Global, logger.Logger)
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (default HTTP_ADDR)")
	return cmd
}
