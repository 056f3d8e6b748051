package db

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// BadgerLogger adapts slog to badger's logger interface.
type BadgerLogger struct {
	logger *slog.Logger
}

func NewBadgerLogger(logger *slog.Logger) *BadgerLogger {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &BadgerLogger{logger: logger}
}

func (b *BadgerLogger) Errorf(msg string, args ...any) {
	b.logger.Error(fmt.Sprintf(msg, args...), "event", "badger_log", "layer", "platform")
}

func (b *BadgerLogger) Warningf(msg string, args ...any) {
	b.logger.Warn(fmt.Sprintf(msg, args...), "event", "badger_log", "layer", "platform")
}

func (b *BadgerLogger) Infof(msg string, args ...any) {
	b.logger.Info(fmt.Sprintf(msg, args...), "event", "badger_log", "layer", "platform")
}

func (b *BadgerLogger) Debugf(msg string, args ...any) {
	b.logger.Debug(fmt.Sprintf(msg, args...), "event", "badger_log", "layer", "platform")
}

// OpenBadger opens dir, creating it when missing. An empty dir gives an
// in-memory instance.
func OpenBadger(dir string, logger *slog.Logger) (*badger.DB, error) {
	if dir == "" {
		opts := badger.DefaultOptions("").
			WithLogger(NewBadgerLogger(logger)).
			WithLoggingLevel(badger.WARNING).
			WithInMemory(true)
		return badger.Open(opts)
	}

	if _, err := os.Stat(dir); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read data dir: %w", err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}
	opts := badger.DefaultOptions(dir).
		WithLogger(NewBadgerLogger(logger)).
		WithLoggingLevel(badger.WARNING).
		WithCompression(options.Snappy)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}
