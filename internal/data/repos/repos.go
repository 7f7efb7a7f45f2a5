package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/gradebridge-backend/internal/data/repos/catalog"
	"github.com/yungbote/gradebridge-backend/internal/data/repos/reconcile"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
)

type StudentRepo = catalog.StudentRepo
type ClassOfferingRepo = catalog.ClassOfferingRepo
type CurriculumItemRepo = catalog.CurriculumItemRepo
type EnrollmentRepo = catalog.EnrollmentRepo
type AssignmentRecordRepo = catalog.AssignmentRecordRepo
type ClassSnapshotRepo = catalog.ClassSnapshotRepo
type StudentAssignment = catalog.StudentAssignment

type PendingApprovalRepo = reconcile.PendingApprovalRepo
type SweepRunRepo = reconcile.SweepRunRepo

// Set bundles every repo the reconciliation engine and its services use.
type Set struct {
	Students    StudentRepo
	Classes     ClassOfferingRepo
	Items       CurriculumItemRepo
	Enrollments EnrollmentRepo
	Records     AssignmentRecordRepo
	Snapshots   ClassSnapshotRepo
	Approvals   PendingApprovalRepo
	SweepRuns   SweepRunRepo
}

func NewSet(db *gorm.DB, log *logger.Logger) Set {
	return Set{
		Students:    catalog.NewStudentRepo(db, log),
		Classes:     catalog.NewClassOfferingRepo(db, log),
		Items:       catalog.NewCurriculumItemRepo(db, log),
		Enrollments: catalog.NewEnrollmentRepo(db, log),
		Records:     catalog.NewAssignmentRecordRepo(db, log),
		Snapshots:   catalog.NewClassSnapshotRepo(db, log),
		Approvals:   reconcile.NewPendingApprovalRepo(db, log),
		SweepRuns:   reconcile.NewSweepRunRepo(db, log),
	}
}
