package domain

import (
	"github.com/yungbote/gradebridge-backend/internal/domain/catalog"
	"github.com/yungbote/gradebridge-backend/internal/domain/reconcile"
)

const (
	SubjectMath          = catalog.SubjectMath
	SubjectScience       = catalog.SubjectScience
	SubjectEnglish       = catalog.SubjectEnglish
	SubjectSocialStudies = catalog.SubjectSocialStudies
	SubjectWorldLanguage = catalog.SubjectWorldLanguage
	SubjectArts          = catalog.SubjectArts
	SubjectElective      = catalog.SubjectElective

	StatusComplete   = catalog.StatusComplete
	StatusIncomplete = catalog.StatusIncomplete

	ApprovalPending  = reconcile.ApprovalPending
	ApprovalApproved = reconcile.ApprovalApproved
	ApprovalDenied   = reconcile.ApprovalDenied

	SweepStatusRunning   = reconcile.SweepStatusRunning
	SweepStatusSucceeded = reconcile.SweepStatusSucceeded
	SweepStatusFailed    = reconcile.SweepStatusFailed
)

type Subject = catalog.Subject
type ClassOffering = catalog.ClassOffering
type CurriculumItem = catalog.CurriculumItem
type Student = catalog.Student
type Enrollment = catalog.Enrollment
type AssignmentRecord = catalog.AssignmentRecord
type ClassSnapshot = catalog.ClassSnapshot
type SnapshotEntry = catalog.SnapshotEntry
type PairKey = catalog.PairKey

type PendingApproval = reconcile.PendingApproval
type SweepRun = reconcile.SweepRun

var (
	Subjects      = catalog.Subjects
	IsSubject     = catalog.IsSubject
	SubjectName   = catalog.SubjectName
	EncodeEntries = catalog.EncodeEntries
	UniquePairs   = catalog.UniquePairs
)
