package catalog

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
)

type StudentRepo interface {
	Create(dbc dbctx.Context, rows []*types.Student) ([]*types.Student, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Student, error)
	GetByNormalizedNames(dbc dbctx.Context, names []string) ([]*types.Student, error)
	ListAll(dbc dbctx.Context) ([]*types.Student, error)
	ListPage(dbc dbctx.Context, after uuid.UUID, limit int) ([]*types.Student, error)
	Search(dbc dbctx.Context, query string, limit int) ([]*types.Student, error)
	Update(dbc dbctx.Context, row *types.Student) error
	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) (int64, error)
}

type studentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStudentRepo(db *gorm.DB, baseLog *logger.Logger) StudentRepo {
	return &studentRepo{db: db, log: baseLog.With("repo", "StudentRepo")}
}

func (r *studentRepo) Create(dbc dbctx.Context, rows []*types.Student) ([]*types.Student, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if len(rows) == 0 {
		return []*types.Student{}, nil
	}
	if err := tx.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *studentRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Student, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	out := []*types.Student{}
	for _, chunk := range chunkIDs(uniqueIDs(ids), inChunk) {
		var rows []*types.Student
		if err := tx.WithContext(dbc.Ctx).Where("id IN ?", chunk).Find(&rows).Error; err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (r *studentRepo) GetByNormalizedNames(dbc dbctx.Context, names []string) ([]*types.Student, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	out := []*types.Student{}
	if len(names) == 0 {
		return out, nil
	}
	if err := tx.WithContext(dbc.Ctx).
		Where("normalized_name IN ?", names).
		Order("created_at asc").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListAll walks the table in id-ordered pages so one import never issues an unbounded query.
func (r *studentRepo) ListAll(dbc dbctx.Context) ([]*types.Student, error) {
	out := []*types.Student{}
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

func (r *studentRepo) ListPage(dbc dbctx.Context, after uuid.UUID, limit int) ([]*types.Student, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if limit <= 0 {
		limit = 500
	}
	out := []*types.Student{}
	q := tx.WithContext(dbc.Ctx).Order("id asc").Limit(limit)
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *studentRepo) Search(dbc dbctx.Context, query string, limit int) ([]*types.Student, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	out := []*types.Student{}
	q := tx.WithContext(dbc.Ctx).Order("name asc").Limit(limit)
	if s := strings.ToLower(strings.TrimSpace(query)); s != "" {
		q = q.Where("lower(name) LIKE ?", "%"+s+"%")
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *studentRepo) Update(dbc dbctx.Context, row *types.Student) error {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if row == nil {
		return nil
	}
	return tx.WithContext(dbc.Ctx).Save(row).Error
}

func (r *studentRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) (int64, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var total int64
	for _, chunk := range chunkIDs(uniqueIDs(ids), inChunk) {
		res := tx.WithContext(dbc.Ctx).Where("id IN ?", chunk).Delete(&types.Student{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}
