package db

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"
)

// WAL journal with a busy timeout and a 50MB page cache.
const sqlitePragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=cache_size(-50000)"

// OpenSQLite opens a file backed database, or a private in-memory one when
// path is empty.
func OpenSQLite(path string) (*SQL, error) {
	dsn := "file::memory:"
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					return nil, fmt.Errorf("failed to read data dir: %w", err)
				}
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("failed to create data dir: %w", err)
				}
			}
		}
		dsn = fmt.Sprintf("file:%s?%s", path, sqlitePragmas)
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open gorm sqlite: %w", err)
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("configure gorm tracing: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite sql db handle: %w", err)
	}
	// single writer; the vote ledger relies on serialized conditional updates
	sqlDB.SetMaxOpenConns(1)
	return &SQL{DB: db, Driver: "sqlite"}, nil
}
