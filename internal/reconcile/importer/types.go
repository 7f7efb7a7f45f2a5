package importer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/normalization"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/activity"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/merge"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/projector"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/reconerr"
)

type Mode string

const (
	ModeImport Mode = "import"
	ModeAudit  Mode = "audit"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(normalization.ParseInputString(s)) {
	case "", ModeImport:
		return ModeImport, nil
	case ModeAudit:
		return ModeAudit, nil
	default:
		return "", fmt.Errorf("unknown import mode %q", s)
	}
}

type Entry struct {
	ActivityLabel string   `json:"activity_label" validate:"max=512"`
	Score         *float64 `json:"score,omitempty"`
	Possible      *float64 `json:"possible,omitempty" validate:"omitempty,gte=0"`
	Percentage    *float64 `json:"percentage,omitempty"`
	Date          string   `json:"date,omitempty"`
	Status        string   `json:"status"`
}

// Record is one parsed (student, class) block of an uploaded file.
type Record struct {
	StudentLabel   string     `json:"student_label" validate:"required_without=StudentID,max=256"`
	StudentID      *uuid.UUID `json:"student_id,omitempty"`
	ClassLabel     string     `json:"class_label" validate:"required,max=256"`
	SubjectHint    string     `json:"subject_hint,omitempty"`
	SourceFile     string     `json:"source_file,omitempty"`
	Freshness      *time.Time `json:"freshness,omitempty"`
	FileModifiedAt *time.Time `json:"file_modified_at,omitempty"`
	Entries        []Entry    `json:"entries" validate:"dive"`
}

func (r Record) snapshotEntries() []types.SnapshotEntry {
	out := make([]types.SnapshotEntry, 0, len(r.Entries))
	for _, e := range r.Entries {
		out = append(out, types.SnapshotEntry{
			ActivityLabel: e.ActivityLabel,
			Score:         e.Score,
			Possible:      e.Possible,
			Percentage:    e.Percentage,
			Date:          e.Date,
			Status:        e.Status,
		})
	}
	return out
}

type Batch struct {
	Mode      Mode          `json:"mode"`
	MatchMode activity.Mode `json:"match_mode"`
	Records   []Record      `json:"records"`
}

type Success struct {
	Index          int        `json:"index"`
	StudentLabel   string     `json:"student_label"`
	StudentID      uuid.UUID  `json:"student_id,omitempty"`
	StudentCreated bool       `json:"student_created,omitempty"`
	ClassLabel     string     `json:"class_label"`
	ClassID        uuid.UUID  `json:"class_id,omitempty"`
	ClassCreated   bool       `json:"class_created,omitempty"`
	ClassAmbiguous bool       `json:"class_ambiguous,omitempty"`
	Subject        string     `json:"subject"`
	Mode           merge.Mode `json:"merge_mode"`
	Accepted       bool       `json:"accepted"`
	Added          int        `json:"added"`
	Version        int        `json:"version,omitempty"`
	Total          int        `json:"total"`
	Completed      int        `json:"completed"`
	Average        *float64   `json:"average,omitempty"`
	Freshness      *time.Time `json:"freshness,omitempty"`
}

type RecordError struct {
	Index  int           `json:"index"`
	Kind   reconerr.Kind `json:"kind"`
	Label  string        `json:"label,omitempty"`
	Reason string        `json:"reason"`
}

// Approval is the caller-facing view of a queued fuzzy match. ID is nil in audit mode, where
// nothing is queued.
type Approval struct {
	ID                 uuid.UUID `json:"id,omitempty"`
	Index              int       `json:"index"`
	ImportedLabel      string    `json:"imported_label"`
	MatchedStudentID   uuid.UUID `json:"matched_student_id"`
	MatchedStudentName string    `json:"matched_student_name"`
	Score              int       `json:"score"`
}

type Result struct {
	BatchID          uuid.UUID       `json:"batch_id"`
	Mode             Mode            `json:"mode"`
	MatchMode        activity.Mode   `json:"match_mode"`
	Successes        []Success       `json:"successes"`
	Errors           []RecordError   `json:"errors"`
	PendingApprovals []Approval      `json:"pending_approvals"`
	Projection       projector.Stats `json:"projection"`
}

// queuedRecord is the payload stored on a PendingApproval.
type queuedRecord struct {
	Record    Record        `json:"record"`
	MatchMode activity.Mode `json:"match_mode"`
}
