package main

import (
	"context"
	"os"

	"github.com/deusflow/shorts-hunter/internal/app"
	"github.com/deusflow/shorts-hunter/internal/config"
	"github.com/deusflow/shorts-hunter/internal/logger"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "hunter",
		Short:         "policy news collector and short-form topic ranker",
		Long:          "Collects Korean policy news feeds, scores items against a keyword dictionary and optionally asks a model for a top 10.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		serveCmd(),
		runCmd(),
		rankCmd(),
		runsCmd(),
		candidatesCmd(),
		sourcesCmd(),
		presetCmd(),
		seedCmd(),
	)

	if err := root.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// bootstrap loads the configuration and wires the service.
func bootstrap(ctx context.Context) (*app.Runtime, error) {
	logger.Init()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.Bootstrap(ctx, cfg, logger.Logger)
}
