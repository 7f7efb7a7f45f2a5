package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/normalization"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	apperrors "github.com/yungbote/gradebridge-backend/internal/platform/errors"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/reconerr"
)

var (
	ErrApprovalNotFound = fmt.Errorf("approval %w", apperrors.ErrNotFound)
	ErrApprovalResolved = fmt.Errorf("%w: approval already resolved", apperrors.ErrConflict)
)

func (im *Importer) loadPending(ctx context.Context, id uuid.UUID) (*types.PendingApproval, queuedRecord, error) {
	var q queuedRecord
	row, err := im.set.Approvals.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, q, err
	}
	if row == nil {
		return nil, q, ErrApprovalNotFound
	}
	if row.Status != types.ApprovalPending {
		return nil, q, ErrApprovalResolved
	}
	if err := json.Unmarshal(row.Record, &q); err != nil {
		return nil, q, reconerr.Wrap(reconerr.KindInvalidRecord, row.ImportedLabel, fmt.Errorf("decode queued record: %w", err))
	}
	return row, q, nil
}

// Approve applies the queued record to the student it fuzzily matched.
func (im *Importer) Approve(ctx context.Context, id uuid.UUID) (Result, error) {
	row, q, err := im.loadPending(ctx, id)
	if err != nil {
		return Result{}, err
	}
	matched := row.MatchedStudentID
	q.Record.StudentID = &matched
	res, err := im.run(ctx, row.BatchID, []Record{q.Record}, ModeImport, q.MatchMode)
	if err != nil {
		return res, err
	}
	if err := applied(res); err != nil {
		return res, err
	}
	if err := im.finishApproval(ctx, id, types.ApprovalApproved); err != nil {
		return res, err
	}
	return res, nil
}

// Deny discards the queued record. With createNew the label becomes a new student and the record
// is applied to it instead.
func (im *Importer) Deny(ctx context.Context, id uuid.UUID, createNew bool) (*Result, error) {
	row, q, err := im.loadPending(ctx, id)
	if err != nil {
		return nil, err
	}
	var res *Result
	if createNew {
		display := normalization.StudentName(q.Record.StudentLabel)
		now := time.Now().UTC()
		st := &types.Student{
			ID:             uuid.New(),
			Name:           display,
			NormalizedName: normalization.StudentKey(display),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if _, err := im.set.Students.Create(dbctx.Context{Ctx: ctx}, []*types.Student{st}); err != nil {
			return nil, fmt.Errorf("create student: %w", err)
		}
		q.Record.StudentID = &st.ID
		out, err := im.run(ctx, row.BatchID, []Record{q.Record}, ModeImport, q.MatchMode)
		if err == nil {
			err = applied(out)
		}
		if err != nil {
			// Leave the approval pending; a retry creates the student again.
			if _, derr := im.set.Students.DeleteByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{st.ID}); derr != nil {
				im.log.Warn("Failed to remove student after failed deny", "student_id", st.ID, "error", derr)
			}
			return &out, err
		}
		res = &out
	}
	if err := im.finishApproval(ctx, id, types.ApprovalDenied); err != nil {
		return res, err
	}
	return res, nil
}

// applied returns the failure of a single-record run that produced no success. The queued
// record stays pending in that case.
func applied(res Result) error {
	if len(res.Successes) > 0 {
		return nil
	}
	if len(res.Errors) > 0 {
		e := res.Errors[0]
		return reconerr.New(e.Kind, e.Label, e.Reason)
	}
	return reconerr.New(reconerr.KindIdentityUnresolved, "", "queued record was not applied")
}

func (im *Importer) finishApproval(ctx context.Context, id uuid.UUID, status string) error {
	ok, err := im.set.Approvals.Resolve(dbctx.Context{Ctx: ctx}, id, status)
	if err != nil {
		return err
	}
	if !ok {
		return ErrApprovalResolved
	}
	im.log.Info("Approval resolved", "approval_id", id, "status", status)
	return nil
}
