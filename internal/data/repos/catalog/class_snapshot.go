package catalog

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
)

type ClassSnapshotRepo interface {
	GetByPair(dbc dbctx.Context, pair types.PairKey, forUpdate bool) (*types.ClassSnapshot, error)
	GetByPairs(dbc dbctx.Context, pairs []types.PairKey) (map[types.PairKey]*types.ClassSnapshot, error)
	GetByStudentIDs(dbc dbctx.Context, studentIDs []uuid.UUID) ([]*types.ClassSnapshot, error)
	GetByClassIDs(dbc dbctx.Context, classIDs []uuid.UUID) ([]*types.ClassSnapshot, error)
	ListPage(dbc dbctx.Context, after uuid.UUID, limit int) ([]*types.ClassSnapshot, error)
	ListOrphanIDs(dbc dbctx.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
	Create(dbc dbctx.Context, row *types.ClassSnapshot) error
	Update(dbc dbctx.Context, row *types.ClassSnapshot) error
	UpdateFields(dbc dbctx.Context, ids []uuid.UUID, updates map[string]interface{}) (int64, error)
	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) (int64, error)
}

type classSnapshotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClassSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) ClassSnapshotRepo {
	return &classSnapshotRepo{db: db, log: baseLog.With("repo", "ClassSnapshotRepo")}
}

// GetByPair returns nil when the pair has no snapshot. forUpdate takes a row lock on Postgres.
func (r *classSnapshotRepo) GetByPair(dbc dbctx.Context, pair types.PairKey, forUpdate bool) (*types.ClassSnapshot, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if !pair.Valid() {
		return nil, nil
	}
	q := tx.WithContext(dbc.Ctx).Where("student_id = ? AND class_id = ?", pair.StudentID, pair.ClassID)
	if forUpdate && tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row types.ClassSnapshot
	if err := q.Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *classSnapshotRepo) GetByPairs(dbc dbctx.Context, pairs []types.PairKey) (map[types.PairKey]*types.ClassSnapshot, error) {
	out := map[types.PairKey]*types.ClassSnapshot{}
	pairs = types.UniquePairs(pairs)
	if len(pairs) == 0 {
		return out, nil
	}
	want := make(map[types.PairKey]bool, len(pairs))
	studentIDs := make([]uuid.UUID, 0, len(pairs))
	for _, p := range pairs {
		want[p] = true
		studentIDs = append(studentIDs, p.StudentID)
	}
	rows, err := r.GetByStudentIDs(dbc, studentIDs)
	if err != nil {
		return nil, err
	}
	for _, s := range rows {
		k := types.PairKey{StudentID: s.StudentID, ClassID: s.ClassID}
		if want[k] {
			out[k] = s
		}
	}
	return out, nil
}

func (r *classSnapshotRepo) GetByStudentIDs(dbc dbctx.Context, studentIDs []uuid.UUID) ([]*types.ClassSnapshot, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	out := []*types.ClassSnapshot{}
	for _, chunk := range chunkIDs(uniqueIDs(studentIDs), inChunk) {
		var rows []*types.ClassSnapshot
		if err := tx.WithContext(dbc.Ctx).Where("student_id IN ?", chunk).Find(&rows).Error; err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (r *classSnapshotRepo) GetByClassIDs(dbc dbctx.Context, classIDs []uuid.UUID) ([]*types.ClassSnapshot, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	out := []*types.ClassSnapshot{}
	for _, chunk := range chunkIDs(uniqueIDs(classIDs), inChunk) {
		var rows []*types.ClassSnapshot
		if err := tx.WithContext(dbc.Ctx).Where("class_id IN ?", chunk).Find(&rows).Error; err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (r *classSnapshotRepo) ListPage(dbc dbctx.Context, after uuid.UUID, limit int) ([]*types.ClassSnapshot, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if limit <= 0 {
		limit = 200
	}
	out := []*types.ClassSnapshot{}
	q := tx.WithContext(dbc.Ctx).Order("id asc").Limit(limit)
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *classSnapshotRepo) ListOrphanIDs(dbc dbctx.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if limit <= 0 {
		limit = 200
	}
	var ids []uuid.UUID
	q := tx.WithContext(dbc.Ctx).
		Model(&types.ClassSnapshot{}).
		Where("(NOT EXISTS (SELECT 1 FROM student s WHERE s.id = class_snapshot.student_id) OR NOT EXISTS (SELECT 1 FROM class_offering c WHERE c.id = class_snapshot.class_id))")
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	if err := q.Order("id asc").Limit(limit).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *classSnapshotRepo) Create(dbc dbctx.Context, row *types.ClassSnapshot) error {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if row == nil {
		return nil
	}
	return tx.WithContext(dbc.Ctx).Create(row).Error
}

func (r *classSnapshotRepo) Update(dbc dbctx.Context, row *types.ClassSnapshot) error {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if row == nil || row.ID == uuid.Nil {
		return nil
	}
	return tx.WithContext(dbc.Ctx).Save(row).Error
}

func (r *classSnapshotRepo) UpdateFields(dbc dbctx.Context, ids []uuid.UUID, updates map[string]interface{}) (int64, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if len(updates) == 0 {
		return 0, nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	var total int64
	for _, chunk := range chunkIDs(uniqueIDs(ids), inChunk) {
		res := tx.WithContext(dbc.Ctx).Model(&types.ClassSnapshot{}).Where("id IN ?", chunk).Updates(updates)
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

func (r *classSnapshotRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) (int64, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var total int64
	for _, chunk := range chunkIDs(uniqueIDs(ids), inChunk) {
		res := tx.WithContext(dbc.Ctx).Where("id IN ?", chunk).Delete(&types.ClassSnapshot{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}
