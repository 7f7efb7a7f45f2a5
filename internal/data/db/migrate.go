package db

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
)

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

func (s *Service) DB() *gorm.DB { return s.db }

// Open connects to the configured driver ("postgres" or "sqlite").
func Open(logg *logger.Logger, driver, sqliteDSN string) (*Service, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "postgres", "postgresql":
		return NewPostgresService(logg)
	case "sqlite", "sqlite3":
		return NewSQLiteService(logg, sqliteDSN)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", driver)
	}
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating catalog tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureCatalogIndexes(s.db); err != nil {
		return err
	}
	return SeedSubjects(s.db)
}

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// =========================
		// Catalog
		// =========================
		&types.Subject{},
		&types.ClassOffering{},
		&types.CurriculumItem{},
		&types.Student{},
		&types.Enrollment{},

		// =========================
		// Snapshot (authoritative) + projection (derived)
		// =========================
		&types.ClassSnapshot{},
		&types.AssignmentRecord{},

		// =========================
		// Reconciliation bookkeeping
		// =========================
		&types.PendingApproval{},
		&types.SweepRun{},
	)
}

func EnsureCatalogIndexes(db *gorm.DB) error {
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_student_lower_name ON student (lower(name));`).Error; err != nil {
		return fmt.Errorf("create idx_student_lower_name: %w", err)
	}
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec(`
			CREATE INDEX IF NOT EXISTS idx_pending_approval_open
			ON pending_approval (created_at)
			WHERE status = 'pending';
		`).Error; err != nil {
			return fmt.Errorf("create idx_pending_approval_open: %w", err)
		}
	}
	return nil
}

// SeedSubjects inserts the fixed subject set; existing rows are left alone.
func SeedSubjects(db *gorm.DB) error {
	now := time.Now().UTC()
	rows := types.Subjects()
	for i := range rows {
		rows[i].CreatedAt = now
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}
