package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yungbote/gradebridge-backend/internal/platform/logger"

	// Pure Go SQLite driver (no CGO), registered as "sqlite".
	_ "modernc.org/sqlite"
)

var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA synchronous = NORMAL",
}

// NewSQLiteService opens a SQLite database at dsn. A bare file path has its parent directory
// created; "file:" DSNs (including in-memory ones) are passed through untouched.
func NewSQLiteService(logg *logger.Logger, dsn string) (*Service, error) {
	serviceLog := logg.With("service", "SQLiteService")
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn required")
	}
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite pool: %w", err)
	}
	// A single connection keeps writers from tripping over SQLITE_BUSY; callers must route every
	// statement inside a transaction through that transaction's handle.
	sqlDB.SetMaxOpenConns(1)

	for _, p := range sqlitePragmas {
		if err := db.Exec(p).Error; err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return &Service{db: db, log: serviceLog}, nil
}
