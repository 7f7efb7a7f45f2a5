package catalog

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
)

type ClassOfferingRepo interface {
	Create(dbc dbctx.Context, rows []*types.ClassOffering) ([]*types.ClassOffering, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ClassOffering, error)
	GetByNormalizedTitles(dbc dbctx.Context, titles []string) ([]*types.ClassOffering, error)
	ListAll(dbc dbctx.Context) ([]*types.ClassOffering, error)
	ListPage(dbc dbctx.Context, after uuid.UUID, limit int) ([]*types.ClassOffering, error)
	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) (int64, error)
}

type classOfferingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClassOfferingRepo(db *gorm.DB, baseLog *logger.Logger) ClassOfferingRepo {
	return &classOfferingRepo{db: db, log: baseLog.With("repo", "ClassOfferingRepo")}
}

func (r *classOfferingRepo) Create(dbc dbctx.Context, rows []*types.ClassOffering) ([]*types.ClassOffering, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if len(rows) == 0 {
		return []*types.ClassOffering{}, nil
	}
	if err := tx.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *classOfferingRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ClassOffering, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	out := []*types.ClassOffering{}
	for _, chunk := range chunkIDs(uniqueIDs(ids), inChunk) {
		var rows []*types.ClassOffering
		if err := tx.WithContext(dbc.Ctx).Where("id IN ?", chunk).Find(&rows).Error; err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// GetByNormalizedTitles matches across every subject; callers filter by subject themselves.
func (r *classOfferingRepo) GetByNormalizedTitles(dbc dbctx.Context, titles []string) ([]*types.ClassOffering, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	out := []*types.ClassOffering{}
	if len(titles) == 0 {
		return out, nil
	}
	if err := tx.WithContext(dbc.Ctx).
		Where("normalized_title IN ?", titles).
		Order("created_at asc").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *classOfferingRepo) ListAll(dbc dbctx.Context) ([]*types.ClassOffering, error) {
	out := []*types.ClassOffering{}
	after := uuid.Nil
	for {
		page, err := r.ListPage(dbc, after, 1000)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return out, nil
		}
		out = append(out, page...)
		after = page[len(page)-1].ID
	}
}

func (r *classOfferingRepo) ListPage(dbc dbctx.Context, after uuid.UUID, limit int) ([]*types.ClassOffering, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if limit <= 0 {
		limit = 500
	}
	out := []*types.ClassOffering{}
	q := tx.WithContext(dbc.Ctx).Order("id asc").Limit(limit)
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *classOfferingRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) (int64, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var total int64
	for _, chunk := range chunkIDs(uniqueIDs(ids), inChunk) {
		res := tx.WithContext(dbc.Ctx).Where("id IN ?", chunk).Delete(&types.ClassOffering{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}
