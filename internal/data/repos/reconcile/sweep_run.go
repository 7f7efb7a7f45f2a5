package reconcile

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
)

type SweepRunRepo interface {
	Create(dbc dbctx.Context, row *types.SweepRun) error
	Finish(dbc dbctx.Context, id uuid.UUID, status string, counts, errs datatypes.JSON) error
	ListRecent(dbc dbctx.Context, pass string, limit int) ([]*types.SweepRun, error)
}

type sweepRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSweepRunRepo(db *gorm.DB, baseLog *logger.Logger) SweepRunRepo {
	return &sweepRunRepo{db: db, log: baseLog.With("repo", "SweepRunRepo")}
}

func (r *sweepRunRepo) Create(dbc dbctx.Context, row *types.SweepRun) error {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if row == nil {
		return nil
	}
	return tx.WithContext(dbc.Ctx).Create(row).Error
}

func (r *sweepRunRepo) Finish(dbc dbctx.Context, id uuid.UUID, status string, counts, errs datatypes.JSON) error {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	now := time.Now().UTC()
	return tx.WithContext(dbc.Ctx).
		Model(&types.SweepRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"counts":      counts,
			"errors":      errs,
			"finished_at": now,
			"updated_at":  now,
		}).Error
}

func (r *sweepRunRepo) ListRecent(dbc dbctx.Context, pass string, limit int) ([]*types.SweepRun, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	out := []*types.SweepRun{}
	q := tx.WithContext(dbc.Ctx).Order("started_at desc").Limit(limit)
	if pass != "" {
		q = q.Where("pass = ?", pass)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
