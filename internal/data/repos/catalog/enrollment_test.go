package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/gradebridge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
)

func TestEnrollmentRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewEnrollmentRepo(db, testutil.Logger(t))

	student := testutil.SeedStudent(t, ctx, tx, "Jane Doe", time.Time{})
	bio := testutil.SeedClass(t, ctx, tx, types.SubjectScience, "Biology A", time.Time{})
	alg := testutil.SeedClass(t, ctx, tx, types.SubjectMath, "Algebra I", time.Time{})

	pairs := []types.PairKey{
		{StudentID: student.ID, ClassID: bio.ID},
		{StudentID: student.ID, ClassID: alg.ID},
		{StudentID: student.ID, ClassID: bio.ID},
	}
	first, err := repo.Ensure(dbc, pairs)
	if err != nil || len(first) != 2 {
		t.Fatalf("Ensure: err=%v len=%d", err, len(first))
	}
	again, err := repo.Ensure(dbc, pairs)
	if err != nil {
		t.Fatalf("Ensure again: %v", err)
	}
	for k, e := range first {
		if again[k] == nil || again[k].ID != e.ID {
			t.Fatalf("Ensure not idempotent for %s", k)
		}
	}

	bioKey := types.PairKey{StudentID: student.ID, ClassID: bio.ID}
	grade := 87.5
	now := time.Now().UTC()
	if err := repo.Upsert(dbc, []*types.Enrollment{{
		ID:             uuid.New(),
		StudentID:      student.ID,
		ClassID:        bio.ID,
		CurrentGrade:   &grade,
		TotalCount:     12,
		CompletedCount: 8,
		LastImportedAt: &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	byPair, err := repo.GetByPairs(dbc, []types.PairKey{bioKey})
	if err != nil {
		t.Fatalf("GetByPairs: %v", err)
	}
	e := byPair[bioKey]
	if e == nil || e.ID != first[bioKey].ID || e.TotalCount != 12 || e.CompletedCount != 8 || e.CurrentGrade == nil || *e.CurrentGrade != grade {
		t.Fatalf("Upsert did not update aggregates in place: %+v", e)
	}

	if rows, err := repo.GetByClassIDs(dbc, []uuid.UUID{alg.ID}); err != nil || len(rows) != 1 {
		t.Fatalf("GetByClassIDs: err=%v len=%d", err, len(rows))
	}

	// Removing the class leaves a dead link that ListOrphanIDs must surface.
	if err := tx.Delete(&types.ClassOffering{}, "id = ?", alg.ID).Error; err != nil {
		t.Fatalf("delete class: %v", err)
	}
	orphans, err := repo.ListOrphanIDs(dbc, uuid.Nil, 10)
	if err != nil || len(orphans) != 1 || orphans[0] != first[types.PairKey{StudentID: student.ID, ClassID: alg.ID}].ID {
		t.Fatalf("ListOrphanIDs: err=%v ids=%v", err, orphans)
	}

	if n, err := repo.DeleteByIDs(dbc, orphans); err != nil || n != 1 {
		t.Fatalf("DeleteByIDs: err=%v n=%d", err, n)
	}
}
