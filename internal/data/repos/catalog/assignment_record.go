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

// StudentAssignment is one record joined with its item and class for the read API.
type StudentAssignment struct {
	RecordID         uuid.UUID `json:"record_id"`
	EnrollmentID     uuid.UUID `json:"enrollment_id"`
	ClassID          uuid.UUID `json:"class_id"`
	ClassTitle       string    `json:"class_title"`
	SubjectCode      string    `json:"subject_code"`
	CurriculumItemID uuid.UUID `json:"curriculum_item_id"`
	ItemTitle        string    `json:"item_title"`
	ItemCode         string    `json:"item_code,omitempty"`
	Score            *float64  `json:"score,omitempty"`
	Possible         *float64  `json:"possible,omitempty"`
	Percentage       *float64  `json:"percentage,omitempty"`
	Status           string    `json:"status"`
	SubmittedOn      string    `json:"submitted_on,omitempty"`
}

type AssignmentRecordRepo interface {
	Upsert(dbc dbctx.Context, rows []*types.AssignmentRecord) error
	GetByEnrollmentIDs(dbc dbctx.Context, enrollmentIDs []uuid.UUID) ([]*types.AssignmentRecord, error)
	GetByCurriculumItemIDs(dbc dbctx.Context, itemIDs []uuid.UUID) ([]*types.AssignmentRecord, error)
	CountByStudentIDs(dbc dbctx.Context, studentIDs []uuid.UUID) (map[uuid.UUID]int, error)
	ListOrphanIDs(dbc dbctx.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
	ListForStudent(dbc dbctx.Context, studentID uuid.UUID) ([]StudentAssignment, error)
	UpdateCurriculumItem(dbc dbctx.Context, ids []uuid.UUID, itemID uuid.UUID) (int64, error)
	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) (int64, error)
	DeleteByEnrollmentIDs(dbc dbctx.Context, enrollmentIDs []uuid.UUID) (int64, error)
	DeleteByCurriculumItemIDs(dbc dbctx.Context, itemIDs []uuid.UUID) (int64, error)
}

type assignmentRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssignmentRecordRepo(db *gorm.DB, baseLog *logger.Logger) AssignmentRecordRepo {
	return &assignmentRecordRepo{db: db, log: baseLog.With("repo", "AssignmentRecordRepo")}
}

func (r *assignmentRecordRepo) Upsert(dbc dbctx.Context, rows []*types.AssignmentRecord) error {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "enrollment_id"}, {Name: "curriculum_item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"score",
				"possible",
				"percentage",
				"status",
				"submitted_on",
				"updated_at",
			}),
		}).
		CreateInBatches(&rows, 200).Error
}

func (r *assignmentRecordRepo) GetByEnrollmentIDs(dbc dbctx.Context, enrollmentIDs []uuid.UUID) ([]*types.AssignmentRecord, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	out := []*types.AssignmentRecord{}
	for _, chunk := range chunkIDs(uniqueIDs(enrollmentIDs), inChunk) {
		var rows []*types.AssignmentRecord
		if err := tx.WithContext(dbc.Ctx).Where("enrollment_id IN ?", chunk).Find(&rows).Error; err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (r *assignmentRecordRepo) GetByCurriculumItemIDs(dbc dbctx.Context, itemIDs []uuid.UUID) ([]*types.AssignmentRecord, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	out := []*types.AssignmentRecord{}
	for _, chunk := range chunkIDs(uniqueIDs(itemIDs), inChunk) {
		var rows []*types.AssignmentRecord
		if err := tx.WithContext(dbc.Ctx).Where("curriculum_item_id IN ?", chunk).Find(&rows).Error; err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (r *assignmentRecordRepo) CountByStudentIDs(dbc dbctx.Context, studentIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	out := map[uuid.UUID]int{}
	for _, chunk := range chunkIDs(uniqueIDs(studentIDs), inChunk) {
		var rows []struct {
			StudentID uuid.UUID
			N         int
		}
		if err := tx.WithContext(dbc.Ctx).
			Table("assignment_record AS ar").
			Select("e.student_id AS student_id, COUNT(*) AS n").
			Joins("JOIN enrollment e ON e.id = ar.enrollment_id").
			Where("e.student_id IN ?", chunk).
			Group("e.student_id").
			Scan(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			out[row.StudentID] = row.N
		}
	}
	return out, nil
}

// ListOrphanIDs pages through records that no longer link a live enrollment to a live item of
// that enrollment's own class.
func (r *assignmentRecordRepo) ListOrphanIDs(dbc dbctx.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if limit <= 0 {
		limit = 200
	}
	var ids []uuid.UUID
	q := tx.WithContext(dbc.Ctx).
		Model(&types.AssignmentRecord{}).
		Where(`NOT EXISTS (
			SELECT 1 FROM enrollment e
			JOIN curriculum_item ci ON ci.class_id = e.class_id
			WHERE e.id = assignment_record.enrollment_id
			  AND ci.id = assignment_record.curriculum_item_id
		)`)
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	if err := q.Order("id asc").Limit(limit).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ListForStudent only returns records whose item belongs to the enrollment's class, so a
// contaminated row never reaches the read API even before orphan-purge runs.
func (r *assignmentRecordRepo) ListForStudent(dbc dbctx.Context, studentID uuid.UUID) ([]StudentAssignment, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	out := []StudentAssignment{}
	if studentID == uuid.Nil {
		return out, nil
	}
	err := tx.WithContext(dbc.Ctx).
		Table("assignment_record AS ar").
		Select(`ar.id AS record_id, ar.enrollment_id AS enrollment_id, e.class_id AS class_id,
			c.title AS class_title, c.subject_code AS subject_code,
			ci.id AS curriculum_item_id, ci.title AS item_title, ci.code AS item_code,
			ar.score AS score, ar.possible AS possible, ar.percentage AS percentage,
			ar.status AS status, ar.submitted_on AS submitted_on`).
		Joins("JOIN enrollment e ON e.id = ar.enrollment_id").
		Joins("JOIN curriculum_item ci ON ci.id = ar.curriculum_item_id AND ci.class_id = e.class_id").
		Joins("JOIN class_offering c ON c.id = e.class_id").
		Where("e.student_id = ?", studentID).
		Order("c.title asc, ci.title asc").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *assignmentRecordRepo) UpdateCurriculumItem(dbc dbctx.Context, ids []uuid.UUID, itemID uuid.UUID) (int64, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if itemID == uuid.Nil {
		return 0, nil
	}
	var total int64
	for _, chunk := range chunkIDs(uniqueIDs(ids), inChunk) {
		res := tx.WithContext(dbc.Ctx).
			Model(&types.AssignmentRecord{}).
			Where("id IN ?", chunk).
			Updates(map[string]interface{}{"curriculum_item_id": itemID, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

func (r *assignmentRecordRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) (int64, error) {
	return r.deleteWhere(dbc, "id IN ?", ids)
}

func (r *assignmentRecordRepo) DeleteByEnrollmentIDs(dbc dbctx.Context, enrollmentIDs []uuid.UUID) (int64, error) {
	return r.deleteWhere(dbc, "enrollment_id IN ?", enrollmentIDs)
}

func (r *assignmentRecordRepo) DeleteByCurriculumItemIDs(dbc dbctx.Context, itemIDs []uuid.UUID) (int64, error) {
	return r.deleteWhere(dbc, "curriculum_item_id IN ?", itemIDs)
}

func (r *assignmentRecordRepo) deleteWhere(dbc dbctx.Context, cond string, ids []uuid.UUID) (int64, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var total int64
	for _, chunk := range chunkIDs(uniqueIDs(ids), inChunk) {
		res := tx.WithContext(dbc.Ctx).Where(cond, chunk).Delete(&types.AssignmentRecord{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}
