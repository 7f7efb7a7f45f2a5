package reconcile

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
)

type PendingApprovalRepo interface {
	Create(dbc dbctx.Context, rows []*types.PendingApproval) ([]*types.PendingApproval, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.PendingApproval, error)
	ListByStatus(dbc dbctx.Context, status string, limit int) ([]*types.PendingApproval, error)
	Resolve(dbc dbctx.Context, id uuid.UUID, status string) (bool, error)
}

type pendingApprovalRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPendingApprovalRepo(db *gorm.DB, baseLog *logger.Logger) PendingApprovalRepo {
	return &pendingApprovalRepo{db: db, log: baseLog.With("repo", "PendingApprovalRepo")}
}

func (r *pendingApprovalRepo) Create(dbc dbctx.Context, rows []*types.PendingApproval) ([]*types.PendingApproval, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if len(rows) == 0 {
		return []*types.PendingApproval{}, nil
	}
	if err := tx.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *pendingApprovalRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.PendingApproval, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.PendingApproval
	if err := tx.WithContext(dbc.Ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ListByStatus returns oldest first. An empty status lists everything.
func (r *pendingApprovalRepo) ListByStatus(dbc dbctx.Context, status string, limit int) ([]*types.PendingApproval, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	out := []*types.PendingApproval{}
	q := tx.WithContext(dbc.Ctx).Order("created_at asc").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Resolve moves a pending row to status. It reports false when the row was no longer pending.
func (r *pendingApprovalRepo) Resolve(dbc dbctx.Context, id uuid.UUID, status string) (bool, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	now := time.Now().UTC()
	res := tx.WithContext(dbc.Ctx).
		Model(&types.PendingApproval{}).
		Where("id = ? AND status = ?", id, types.ApprovalPending).
		Updates(map[string]interface{}{
			"status":      status,
			"resolved_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
