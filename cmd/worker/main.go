package main

import (
	"context"
	"log/slog"
	"os"

	"sntportal/internal/app/bootstrap"
	"sntportal/internal/app/cli"
	"sntportal/internal/platform/config"
)

// Worker process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring.
// 3) Run the reconcile sweep and outbox relay on the poll interval.
func main() {
	cmd := cli.NewRootCommand("sntportal-worker", "Voting reconcile and outbox worker", run)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	app, err := bootstrap.BuildWorker(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap worker failed",
			"event", "worker_bootstrap_failed",
			"module", "cmd/worker",
			"layer", "platform",
			"error", err.Error(),
		)
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("worker shutdown close failed",
				"event", "worker_close_failed",
				"module", "cmd/worker",
				"layer", "platform",
				"error", err.Error(),
			)
		}
	}()
	return app.Run(ctx)
}
