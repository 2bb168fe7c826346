// Package dbtest opens isolated, migrated SQLite stores for tests.
package dbtest

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lojf/attendance/internal/db"
)

// Open returns a migrated database in a temp directory.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000&_foreign_keys=on"
	gdb, err := db.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	gdb.Logger = logger.Default.LogMode(logger.Silent)
	if err := db.Migrate(gdb, Logger()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
