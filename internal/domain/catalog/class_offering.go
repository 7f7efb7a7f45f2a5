package catalog

import (
	"time"

	"github.com/google/uuid"
)

// ClassOffering is a (subject, title) pair. The pair should be unique but is not indexed as such:
// duplicates are folded by the class-dedup sweeper pass.
type ClassOffering struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SubjectCode     string    `gorm:"column:subject_code;not null;index:idx_class_subject_title" json:"subject_code"`
	Title           string    `gorm:"column:title;not null" json:"title"`
	NormalizedTitle string    `gorm:"column:normalized_title;not null;index:idx_class_subject_title;index" json:"normalized_title"`
	CreatedAt       time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null" json:"updated_at"`
}

func (ClassOffering) TableName() string { return "class_offering" }
