package main

import (
	"context"
	"log/slog"
	"os"

	"sntportal/internal/app/bootstrap"
	"sntportal/internal/app/cli"
	"sntportal/internal/platform/config"
)

// API process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring (ports + adapters + use cases).
// 3) Serve HTTP until a shutdown signal arrives.
func main() {
	cmd := cli.NewRootCommand("sntportal-api", "Voting API for the cooperative portal", run)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	app, err := bootstrap.BuildAPI(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap api failed",
			"event", "api_bootstrap_failed",
			"module", "cmd/api",
			"layer", "platform",
			"error", err.Error(),
		)
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("api shutdown close failed",
				"event", "api_close_failed",
				"module", "cmd/api",
				"layer", "platform",
				"error", err.Error(),
			)
		}
	}()
	return app.Run(ctx)
}
