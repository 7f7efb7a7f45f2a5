package reconcile

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SweepStatusRunning   = "running"
	SweepStatusSucceeded = "succeeded"
	SweepStatusFailed    = "failed"
)

// SweepRun is the audit row written for every sweeper pass.
type SweepRun struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Pass        string         `gorm:"column:pass;not null;index" json:"pass"`
	PassVersion int            `gorm:"column:pass_version;not null" json:"pass_version"`
	TriggeredBy string         `gorm:"column:triggered_by;not null" json:"triggered_by"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	Counts      datatypes.JSON `gorm:"column:counts" json:"counts"`
	Errors      datatypes.JSON `gorm:"column:errors" json:"errors"`
	StartedAt   time.Time      `gorm:"column:started_at;not null;index" json:"started_at"`
	FinishedAt  *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (SweepRun) TableName() string { return "sweep_run" }
