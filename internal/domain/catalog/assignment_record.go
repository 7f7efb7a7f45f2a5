package catalog

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusComplete   = "complete"
	StatusIncomplete = "incomplete"
)

// AssignmentRecord is the normalized projection of one snapshot entry.
type AssignmentRecord struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EnrollmentID     uuid.UUID `gorm:"type:uuid;column:enrollment_id;not null;uniqueIndex:idx_assignment_pair" json:"enrollment_id"`
	CurriculumItemID uuid.UUID `gorm:"type:uuid;column:curriculum_item_id;not null;uniqueIndex:idx_assignment_pair;index" json:"curriculum_item_id"`
	Score            *float64  `gorm:"column:score" json:"score,omitempty"`
	Possible         *float64  `gorm:"column:possible" json:"possible,omitempty"`
	Percentage       *float64  `gorm:"column:percentage" json:"percentage,omitempty"`
	Status           string    `gorm:"column:status;not null" json:"status"`
	SubmittedOn      string    `gorm:"column:submitted_on" json:"submitted_on,omitempty"`
	CreatedAt        time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time `gorm:"not null" json:"updated_at"`
}

func (AssignmentRecord) TableName() string { return "assignment_record" }
