package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
)

type CurriculumItemRepo interface {
	Create(dbc dbctx.Context, rows []*types.CurriculumItem) ([]*types.CurriculumItem, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.CurriculumItem, error)
	GetByClassIDs(dbc dbctx.Context, classIDs []uuid.UUID) ([]*types.CurriculumItem, error)
	ListPage(dbc dbctx.Context, after uuid.UUID, limit int) ([]*types.CurriculumItem, error)
	UpdateClassID(dbc dbctx.Context, ids []uuid.UUID, classID uuid.UUID) (int64, error)
	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) (int64, error)
}

type curriculumItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCurriculumItemRepo(db *gorm.DB, baseLog *logger.Logger) CurriculumItemRepo {
	return &curriculumItemRepo{db: db, log: baseLog.With("repo", "CurriculumItemRepo")}
}

func (r *curriculumItemRepo) Create(dbc dbctx.Context, rows []*types.CurriculumItem) ([]*types.CurriculumItem, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if len(rows) == 0 {
		return []*types.CurriculumItem{}, nil
	}
	if err := tx.WithContext(dbc.Ctx).CreateInBatches(&rows, 200).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *curriculumItemRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.CurriculumItem, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	out := []*types.CurriculumItem{}
	for _, chunk := range chunkIDs(uniqueIDs(ids), inChunk) {
		var rows []*types.CurriculumItem
		if err := tx.WithContext(dbc.Ctx).Where("id IN ?", chunk).Find(&rows).Error; err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (r *curriculumItemRepo) GetByClassIDs(dbc dbctx.Context, classIDs []uuid.UUID) ([]*types.CurriculumItem, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	out := []*types.CurriculumItem{}
	for _, chunk := range chunkIDs(uniqueIDs(classIDs), inChunk) {
		var rows []*types.CurriculumItem
		if err := tx.WithContext(dbc.Ctx).
			Where("class_id IN ?", chunk).
			Order("created_at asc").
			Find(&rows).Error; err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (r *curriculumItemRepo) ListPage(dbc dbctx.Context, after uuid.UUID, limit int) ([]*types.CurriculumItem, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if limit <= 0 {
		limit = 500
	}
	out := []*types.CurriculumItem{}
	q := tx.WithContext(dbc.Ctx).Order("id asc").Limit(limit)
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *curriculumItemRepo) UpdateClassID(dbc dbctx.Context, ids []uuid.UUID, classID uuid.UUID) (int64, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if classID == uuid.Nil {
		return 0, nil
	}
	var total int64
	for _, chunk := range chunkIDs(uniqueIDs(ids), inChunk) {
		res := tx.WithContext(dbc.Ctx).
			Model(&types.CurriculumItem{}).
			Where("id IN ?", chunk).
			Updates(map[string]interface{}{"class_id": classID, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

func (r *curriculumItemRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) (int64, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var total int64
	for _, chunk := range chunkIDs(uniqueIDs(ids), inChunk) {
		res := tx.WithContext(dbc.Ctx).Where("id IN ?", chunk).Delete(&types.CurriculumItem{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}
