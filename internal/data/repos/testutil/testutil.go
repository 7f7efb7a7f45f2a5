package testutil

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	dbsvc "github.com/yungbote/gradebridge-backend/internal/data/db"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB returns a migrated database private to the calling test. With TEST_POSTGRES_DSN set it is a
// throwaway schema on that server; otherwise an in-memory SQLite database.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	var db *gorm.DB
	if dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN")); dsn != "" {
		db = postgresSchema(tb, dsn)
	} else {
		db = memorySQLite(tb)
	}
	if err := dbsvc.AutoMigrateAll(db); err != nil {
		tb.Fatalf("auto migrate: %v", err)
	}
	if err := dbsvc.EnsureCatalogIndexes(db); err != nil {
		tb.Fatalf("ensure indexes: %v", err)
	}
	if err := dbsvc.SeedSubjects(db); err != nil {
		tb.Fatalf("seed subjects: %v", err)
	}
	return db
}

func memorySQLite(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	svc, err := dbsvc.NewSQLiteService(Logger(tb), dsn)
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	db := svc.DB().Session(&gorm.Session{Logger: gormLogger.Default.LogMode(gormLogger.Silent)})
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func postgresSchema(tb testing.TB, dsn string) *gorm.DB {
	tb.Helper()
	schema := "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	cfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	}
	admin, err := gorm.Open(postgres.Open(dsn), cfg)
	if err != nil {
		tb.Fatalf("open postgres: %v", err)
	}
	if err := admin.Exec("CREATE SCHEMA " + schema).Error; err != nil {
		tb.Fatalf("create schema: %v", err)
	}
	db, err := gorm.Open(postgres.Open(withSearchPath(dsn, schema)), cfg)
	if err != nil {
		tb.Fatalf("open postgres schema: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		_ = admin.Exec("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Error
		if sqlDB, err := admin.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func withSearchPath(dsn, schema string) string {
	if strings.Contains(dsn, "://") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "search_path=" + schema
	}
	return dsn + " search_path=" + schema
}

// Tx opens a transaction that is rolled back when the test ends.
func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}
