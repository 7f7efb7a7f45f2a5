package catalog

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SnapshotEntry is one raw assignment line as accepted from an import. CurriculumItemID and Code
// are the activity matcher's resolution at import time; the projector re-resolves when the item
// has since been folded or deleted.
type SnapshotEntry struct {
	ActivityLabel    string     `json:"activity_label"`
	Code             string     `json:"code,omitempty"`
	CurriculumItemID *uuid.UUID `json:"curriculum_item_id,omitempty"`
	Score            *float64   `json:"score,omitempty"`
	Possible         *float64   `json:"possible,omitempty"`
	Percentage       *float64   `json:"percentage,omitempty"`
	Date             string     `json:"date,omitempty"`
	Status           string     `json:"status"`
}

func (e SnapshotEntry) IsComplete() bool { return e.Status == StatusComplete }

// ClassSnapshot is the authoritative per-(student, class) record.
type ClassSnapshot struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID      uuid.UUID      `gorm:"type:uuid;column:student_id;not null;uniqueIndex:idx_snapshot_pair" json:"student_id"`
	ClassID        uuid.UUID      `gorm:"type:uuid;column:class_id;not null;uniqueIndex:idx_snapshot_pair;index" json:"class_id"`
	Freshness      *time.Time     `gorm:"column:freshness" json:"freshness,omitempty"`
	TotalCount     int            `gorm:"column:total_count;not null;default:0" json:"total_count"`
	CompletedCount int            `gorm:"column:completed_count;not null;default:0" json:"completed_count"`
	Average        *float64       `gorm:"column:average" json:"average,omitempty"`
	Entries        datatypes.JSON `gorm:"column:entries" json:"entries"`
	Version        int            `gorm:"column:version;not null;default:0" json:"version"`
	SourceFile     string         `gorm:"column:source_file" json:"source_file,omitempty"`
	ImportedAt     time.Time      `gorm:"column:imported_at;not null" json:"imported_at"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (ClassSnapshot) TableName() string { return "class_snapshot" }

// DecodeEntries returns the entry list; an empty or null blob decodes to an empty list.
func (s *ClassSnapshot) DecodeEntries() ([]SnapshotEntry, error) {
	out := []SnapshotEntry{}
	if s == nil || len(s.Entries) == 0 || string(s.Entries) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(s.Entries, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func EncodeEntries(entries []SnapshotEntry) (datatypes.JSON, error) {
	if entries == nil {
		entries = []SnapshotEntry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
