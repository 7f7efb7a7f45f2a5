package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
)

type EnrollmentRepo interface {
	Ensure(dbc dbctx.Context, pairs []types.PairKey) (map[types.PairKey]*types.Enrollment, error)
	Upsert(dbc dbctx.Context, rows []*types.Enrollment) error
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Enrollment, error)
	GetByPairs(dbc dbctx.Context, pairs []types.PairKey) (map[types.PairKey]*types.Enrollment, error)
	GetByStudentIDs(dbc dbctx.Context, studentIDs []uuid.UUID) ([]*types.Enrollment, error)
	GetByClassIDs(dbc dbctx.Context, classIDs []uuid.UUID) ([]*types.Enrollment, error)
	ListOrphanIDs(dbc dbctx.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
	UpdateFields(dbc dbctx.Context, ids []uuid.UUID, updates map[string]interface{}) (int64, error)
	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) (int64, error)
}

type enrollmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEnrollmentRepo(db *gorm.DB, baseLog *logger.Logger) EnrollmentRepo {
	return &enrollmentRepo{db: db, log: baseLog.With("repo", "EnrollmentRepo")}
}

// Ensure inserts any missing enrollments for pairs and returns the stored row for every pair.
func (r *enrollmentRepo) Ensure(dbc dbctx.Context, pairs []types.PairKey) (map[types.PairKey]*types.Enrollment, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	pairs = types.UniquePairs(pairs)
	if len(pairs) == 0 {
		return map[types.PairKey]*types.Enrollment{}, nil
	}
	now := time.Now().UTC()
	rows := make([]*types.Enrollment, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, &types.Enrollment{
			ID:        uuid.New(),
			StudentID: p.StudentID,
			ClassID:   p.ClassID,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if err := tx.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "class_id"}},
			DoNothing: true,
		}).
		CreateInBatches(&rows, 200).Error; err != nil {
		return nil, err
	}
	return r.GetByPairs(dbctx.Context{Ctx: dbc.Ctx, Tx: tx}, pairs)
}

// Upsert writes aggregate columns keyed on (student_id, class_id). Row IDs of conflicting rows
// are not changed; re-read with GetByPairs when the stored ID matters.
func (r *enrollmentRepo) Upsert(dbc dbctx.Context, rows []*types.Enrollment) error {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "student_id"}, {Name: "class_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"current_grade",
				"total_count",
				"completed_count",
				"last_freshness",
				"source_file",
				"last_imported_at",
				"updated_at",
			}),
		}).
		CreateInBatches(&rows, 200).Error
}

func (r *enrollmentRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Enrollment, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	out := []*types.Enrollment{}
	for _, chunk := range chunkIDs(uniqueIDs(ids), inChunk) {
		var rows []*types.Enrollment
		if err := tx.WithContext(dbc.Ctx).Where("id IN ?", chunk).Find(&rows).Error; err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (r *enrollmentRepo) GetByPairs(dbc dbctx.Context, pairs []types.PairKey) (map[types.PairKey]*types.Enrollment, error) {
	out := map[types.PairKey]*types.Enrollment{}
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
	for _, e := range rows {
		k := types.PairKey{StudentID: e.StudentID, ClassID: e.ClassID}
		if want[k] {
			out[k] = e
		}
	}
	return out, nil
}

func (r *enrollmentRepo) GetByStudentIDs(dbc dbctx.Context, studentIDs []uuid.UUID) ([]*types.Enrollment, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	out := []*types.Enrollment{}
	for _, chunk := range chunkIDs(uniqueIDs(studentIDs), inChunk) {
		var rows []*types.Enrollment
		if err := tx.WithContext(dbc.Ctx).Where("student_id IN ?", chunk).Find(&rows).Error; err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (r *enrollmentRepo) GetByClassIDs(dbc dbctx.Context, classIDs []uuid.UUID) ([]*types.Enrollment, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	out := []*types.Enrollment{}
	for _, chunk := range chunkIDs(uniqueIDs(classIDs), inChunk) {
		var rows []*types.Enrollment
		if err := tx.WithContext(dbc.Ctx).Where("class_id IN ?", chunk).Find(&rows).Error; err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// ListOrphanIDs pages through enrollments whose student or class no longer exists.
func (r *enrollmentRepo) ListOrphanIDs(dbc dbctx.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if limit <= 0 {
		limit = 200
	}
	var ids []uuid.UUID
	q := tx.WithContext(dbc.Ctx).
		Model(&types.Enrollment{}).
		Where("(NOT EXISTS (SELECT 1 FROM student s WHERE s.id = enrollment.student_id) OR NOT EXISTS (SELECT 1 FROM class_offering c WHERE c.id = enrollment.class_id))")
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	if err := q.Order("id asc").Limit(limit).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *enrollmentRepo) UpdateFields(dbc dbctx.Context, ids []uuid.UUID, updates map[string]interface{}) (int64, error) {
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
		res := tx.WithContext(dbc.Ctx).Model(&types.Enrollment{}).Where("id IN ?", chunk).Updates(updates)
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

func (r *enrollmentRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) (int64, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var total int64
	for _, chunk := range chunkIDs(uniqueIDs(ids), inChunk) {
		res := tx.WithContext(dbc.Ctx).Where("id IN ?", chunk).Delete(&types.Enrollment{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}
