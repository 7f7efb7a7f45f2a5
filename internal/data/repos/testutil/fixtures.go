package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/normalization"
)

// Fixtures take an explicit creation time where ordering matters to the code under test.

func SeedStudent(tb testing.TB, ctx context.Context, tx *gorm.DB, name string, createdAt time.Time) *types.Student {
	tb.Helper()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	display := normalization.StudentName(name)
	s := &types.Student{
		ID:             uuid.New(),
		Name:           display,
		NormalizedName: normalization.StudentKey(display),
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed student: %v", err)
	}
	return s
}

func SeedClass(tb testing.TB, ctx context.Context, tx *gorm.DB, subject, title string, createdAt time.Time) *types.ClassOffering {
	tb.Helper()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	c := &types.ClassOffering{
		ID:              uuid.New(),
		SubjectCode:     subject,
		Title:           normalization.Title(title),
		NormalizedTitle: normalization.TitleKey(title),
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed class: %v", err)
	}
	return c
}

func SeedCurriculumItem(tb testing.TB, ctx context.Context, tx *gorm.DB, classID uuid.UUID, title string, points float64, createdAt time.Time) *types.CurriculumItem {
	tb.Helper()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	it := &types.CurriculumItem{
		ID:              uuid.New(),
		ClassID:         classID,
		Title:           normalization.Title(title),
		NormalizedTitle: normalization.TitleKey(title),
		Code:            normalization.StructuredCode(title),
		Points:          points,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	if err := tx.WithContext(ctx).Create(it).Error; err != nil {
		tb.Fatalf("seed curriculum item: %v", err)
	}
	return it
}

func SeedEnrollment(tb testing.TB, ctx context.Context, tx *gorm.DB, studentID, classID uuid.UUID) *types.Enrollment {
	tb.Helper()
	now := time.Now().UTC()
	e := &types.Enrollment{
		ID:        uuid.New(),
		StudentID: studentID,
		ClassID:   classID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed enrollment: %v", err)
	}
	return e
}

func SeedSnapshot(tb testing.TB, ctx context.Context, tx *gorm.DB, studentID, classID uuid.UUID, freshness *time.Time, entries []types.SnapshotEntry) *types.ClassSnapshot {
	tb.Helper()
	raw, err := types.EncodeEntries(entries)
	if err != nil {
		tb.Fatalf("encode entries: %v", err)
	}
	now := time.Now().UTC()
	completed := 0
	for _, e := range entries {
		if e.IsComplete() {
			completed++
		}
	}
	s := &types.ClassSnapshot{
		ID:             uuid.New(),
		StudentID:      studentID,
		ClassID:        classID,
		Freshness:      freshness,
		TotalCount:     len(entries),
		CompletedCount: completed,
		Entries:        raw,
		Version:        1,
		ImportedAt:     now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed snapshot: %v", err)
	}
	return s
}

func SeedRecord(tb testing.TB, ctx context.Context, tx *gorm.DB, enrollmentID, itemID uuid.UUID, status string) *types.AssignmentRecord {
	tb.Helper()
	now := time.Now().UTC()
	r := &types.AssignmentRecord{
		ID:               uuid.New(),
		EnrollmentID:     enrollmentID,
		CurriculumItemID: itemID,
		Status:           status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed record: %v", err)
	}
	return r
}
