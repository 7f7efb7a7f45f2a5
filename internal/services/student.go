package services

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/gradebridge-backend/internal/data/repos"
	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/platform/apierr"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
)

type ClassSummary struct {
	EnrollmentID   uuid.UUID  `json:"enrollment_id"`
	ClassID        uuid.UUID  `json:"class_id"`
	Title          string     `json:"title"`
	SubjectCode    string     `json:"subject_code"`
	Subject        string     `json:"subject"`
	CurrentGrade   *float64   `json:"current_grade,omitempty"`
	TotalCount     int        `json:"total_count"`
	CompletedCount int        `json:"completed_count"`
	LastFreshness  *time.Time `json:"last_freshness,omitempty"`
	SourceFile     string     `json:"source_file,omitempty"`
	LastImportedAt *time.Time `json:"last_imported_at,omitempty"`
}

type OverallSummary struct {
	TotalCount     int      `json:"total_count"`
	CompletedCount int      `json:"completed_count"`
	CompletionRate float64  `json:"completion_rate"`
	Average        *float64 `json:"average,omitempty"`
}

// StudentRecord is read from the projected tables only. Snapshots are never consulted here.
type StudentRecord struct {
	Student     *types.Student            `json:"student"`
	Classes     []ClassSummary            `json:"classes"`
	Assignments []repos.StudentAssignment `json:"assignments"`
	Overall     OverallSummary            `json:"overall"`
}

type StudentService interface {
	List(dbc dbctx.Context, query string, limit int) ([]*types.Student, error)
	Record(dbc dbctx.Context, id uuid.UUID) (*StudentRecord, error)
}

type studentService struct {
	log         *logger.Logger
	students    repos.StudentRepo
	classes     repos.ClassOfferingRepo
	enrollments repos.EnrollmentRepo
	records     repos.AssignmentRecordRepo
}

func NewStudentService(baseLog *logger.Logger, set repos.Set) StudentService {
	return &studentService{
		log:         baseLog.With("service", "StudentService"),
		students:    set.Students,
		classes:     set.Classes,
		enrollments: set.Enrollments,
		records:     set.Records,
	}
}

func (s *studentService) List(dbc dbctx.Context, query string, limit int) ([]*types.Student, error) {
	rows, err := s.students.Search(dbc, query, limit)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "list_students_failed", err)
	}
	return rows, nil
}

func (s *studentService) Record(dbc dbctx.Context, id uuid.UUID) (*StudentRecord, error) {
	if id == uuid.Nil {
		return nil, apierr.BadRequest("invalid_student_id", fmt.Errorf("missing student id"))
	}
	found, err := s.students.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_student_failed", err)
	}
	if len(found) == 0 {
		return nil, apierr.NotFound("student_not_found", nil)
	}

	enrollments, err := s.enrollments.GetByStudentIDs(dbc, []uuid.UUID{id})
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_enrollments_failed", err)
	}
	classIDs := make([]uuid.UUID, 0, len(enrollments))
	for _, e := range enrollments {
		classIDs = append(classIDs, e.ClassID)
	}
	classes, err := s.classes.GetByIDs(dbc, classIDs)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_classes_failed", err)
	}
	classByID := make(map[uuid.UUID]*types.ClassOffering, len(classes))
	for _, c := range classes {
		classByID[c.ID] = c
	}

	assignments, err := s.records.ListForStudent(dbc, id)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_assignments_failed", err)
	}
	if assignments == nil {
		assignments = []repos.StudentAssignment{}
	}

	out := &StudentRecord{
		Student:     found[0],
		Classes:     make([]ClassSummary, 0, len(enrollments)),
		Assignments: assignments,
	}
	var gradeSum float64
	var graded int
	for _, e := range enrollments {
		c := classByID[e.ClassID]
		if c == nil {
			// Orphaned enrollment; the orphan-purge pass removes it.
			continue
		}
		out.Classes = append(out.Classes, ClassSummary{
			EnrollmentID:   e.ID,
			ClassID:        c.ID,
			Title:          c.Title,
			SubjectCode:    c.SubjectCode,
			Subject:        types.SubjectName(c.SubjectCode),
			CurrentGrade:   e.CurrentGrade,
			TotalCount:     e.TotalCount,
			CompletedCount: e.CompletedCount,
			LastFreshness:  e.LastFreshness,
			SourceFile:     e.SourceFile,
			LastImportedAt: e.LastImportedAt,
		})
		out.Overall.TotalCount += e.TotalCount
		out.Overall.CompletedCount += e.CompletedCount
		if e.CurrentGrade != nil {
			gradeSum += *e.CurrentGrade
			graded++
		}
	}
	sort.SliceStable(out.Classes, func(i, j int) bool {
		if out.Classes[i].SubjectCode != out.Classes[j].SubjectCode {
			return out.Classes[i].SubjectCode < out.Classes[j].SubjectCode
		}
		return out.Classes[i].Title < out.Classes[j].Title
	})
	if out.Overall.TotalCount > 0 {
		out.Overall.CompletionRate = float64(out.Overall.CompletedCount) / float64(out.Overall.TotalCount)
	}
	if graded > 0 {
		avg := gradeSum / float64(graded)
		out.Overall.Average = &avg
	}
	return out, nil
}
