package reconcile

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalDenied   = "denied"
)

// PendingApproval holds an import record whose student label only fuzzily matched an existing
// student. Nothing in Record is applied until an operator approves or denies it.
type PendingApproval struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID            uuid.UUID      `gorm:"type:uuid;column:batch_id;not null;index" json:"batch_id"`
	ImportedLabel      string         `gorm:"column:imported_label;not null" json:"imported_label"`
	MatchedStudentID   uuid.UUID      `gorm:"type:uuid;column:matched_student_id;not null;index" json:"matched_student_id"`
	MatchedStudentName string         `gorm:"column:matched_student_name;not null" json:"matched_student_name"`
	Score              int            `gorm:"column:score;not null" json:"score"`
	Record             datatypes.JSON `gorm:"column:record" json:"record"`
	Status             string         `gorm:"column:status;not null;index" json:"status"`
	ResolvedAt         *time.Time     `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	CreatedAt          time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null" json:"updated_at"`
}

func (PendingApproval) TableName() string { return "pending_approval" }
