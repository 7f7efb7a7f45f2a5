package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/yungbote/gradebridge-backend/internal/data/repos"
	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/platform/apierr"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/importer"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/reconerr"
)

type ApprovalService interface {
	List(dbc dbctx.Context, status string, limit int) ([]*types.PendingApproval, error)
	Approve(ctx context.Context, id uuid.UUID) (*importer.Result, error)
	Deny(ctx context.Context, id uuid.UUID, createNew bool) (*importer.Result, error)
}

type approvalService struct {
	log       *logger.Logger
	approvals repos.PendingApprovalRepo
	importer  *importer.Importer
}

func NewApprovalService(baseLog *logger.Logger, approvals repos.PendingApprovalRepo, im *importer.Importer) ApprovalService {
	return &approvalService{
		log:       baseLog.With("service", "ApprovalService"),
		approvals: approvals,
		importer:  im,
	}
}

func (s *approvalService) List(dbc dbctx.Context, status string, limit int) ([]*types.PendingApproval, error) {
	switch status {
	case "":
		status = types.ApprovalPending
	case types.ApprovalPending, types.ApprovalApproved, types.ApprovalDenied:
	default:
		return nil, apierr.BadRequest("invalid_status", fmt.Errorf("unknown approval status %q", status))
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.approvals.ListByStatus(dbc, status, limit)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "list_approvals_failed", err)
	}
	return rows, nil
}

func (s *approvalService) Approve(ctx context.Context, id uuid.UUID) (*importer.Result, error) {
	res, err := s.importer.Approve(ctx, id)
	if err != nil {
		return nil, approvalErr("approve_failed", err)
	}
	return &res, nil
}

func (s *approvalService) Deny(ctx context.Context, id uuid.UUID, createNew bool) (*importer.Result, error) {
	res, err := s.importer.Deny(ctx, id, createNew)
	if err != nil {
		return nil, approvalErr("deny_failed", err)
	}
	return res, nil
}

func approvalErr(code string, err error) error {
	switch {
	case errors.Is(err, importer.ErrApprovalNotFound):
		return apierr.NotFound("approval_not_found", err)
	case errors.Is(err, importer.ErrApprovalResolved):
		return apierr.Conflict("approval_resolved", err)
	case reconerr.KindOf(err) != "":
		return apierr.New(http.StatusUnprocessableEntity, "approval_not_applied", err)
	default:
		return apierr.New(http.StatusInternalServerError, code, err)
	}
}
