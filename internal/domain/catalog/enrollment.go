package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Enrollment is unique per (student, class). Its aggregate columns are a cache written only by the
// projector from the pair's ClassSnapshot.
type Enrollment struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID      uuid.UUID  `gorm:"type:uuid;column:student_id;not null;uniqueIndex:idx_enrollment_pair" json:"student_id"`
	ClassID        uuid.UUID  `gorm:"type:uuid;column:class_id;not null;uniqueIndex:idx_enrollment_pair;index" json:"class_id"`
	CurrentGrade   *float64   `gorm:"column:current_grade" json:"current_grade,omitempty"`
	TotalCount     int        `gorm:"column:total_count;not null;default:0" json:"total_count"`
	CompletedCount int        `gorm:"column:completed_count;not null;default:0" json:"completed_count"`
	LastFreshness  *time.Time `gorm:"column:last_freshness" json:"last_freshness,omitempty"`
	SourceFile     string     `gorm:"column:source_file" json:"source_file,omitempty"`
	LastImportedAt *time.Time `gorm:"column:last_imported_at" json:"last_imported_at,omitempty"`
	CreatedAt      time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"not null" json:"updated_at"`
}

func (Enrollment) TableName() string { return "enrollment" }
