package catalog

import (
	"time"

	"github.com/google/uuid"
)

// CurriculumItem belongs to exactly one class. At most one item per (class, normalized title) is
// the intended state; the curriculum-dedup pass restores it.
type CurriculumItem struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ClassID         uuid.UUID `gorm:"type:uuid;column:class_id;not null;index:idx_curriculum_class_title" json:"class_id"`
	Title           string    `gorm:"column:title;not null" json:"title"`
	NormalizedTitle string    `gorm:"column:normalized_title;not null;index:idx_curriculum_class_title" json:"normalized_title"`
	Code            string    `gorm:"column:code;index" json:"code,omitempty"`
	Points          float64   `gorm:"column:points;not null;default:0" json:"points"`
	CreatedAt       time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null" json:"updated_at"`
}

func (CurriculumItem) TableName() string { return "curriculum_item" }
