// Package cli holds the cobra root shared by the api and worker binaries.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"sntportal/internal/platform/config"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
)

type RunFunc func(ctx context.Context, cfg config.Config, logger *slog.Logger) error

// NewRootCommand builds a command that loads config, configures logging and
// runs fn until SIGINT or SIGTERM.
func NewRootCommand(name string, short string, fn RunFunc) *cobra.Command {
	var (
		configFile string
		debug      bool
	)
	cmd := &cobra.Command{
		Use:          name,
		Short:        short,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if debug {
				cfg.Debug = true
			}
			logger := newLogger(name, cfg.Debug)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return fn(ctx, cfg, logger)
		},
	}
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file to load")
	cmd.PersistentFlags().BoolVarP(&debug, "debug", "D", false, "enable debug logging")
	return cmd
}

func newLogger(component string, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: debug,
		Level:     level,
	}))
	slog.SetDefault(logger)
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Info(fmt.Sprintf(format, args...),
			"event", "maxprocs_set",
			"module", component,
			"layer", "platform",
		)
	})); err != nil {
		logger.Warn("maxprocs setup failed",
			"event", "maxprocs_failed",
			"module", component,
			"layer", "platform",
			"error", err.Error(),
		)
	}
	return logger
}
