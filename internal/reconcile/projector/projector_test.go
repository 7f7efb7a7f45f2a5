package projector

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/gradebridge-backend/internal/data/repos"
	"github.com/yungbote/gradebridge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/platform/pointers"
)

type fixture struct {
	db   *gorm.DB
	set  repos.Set
	proj *Projector
	pair types.PairKey
	labs []*types.CurriculumItem
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	db := testutil.DB(t)
	set := repos.NewSet(db, testutil.Logger(t))
	jane := testutil.SeedStudent(t, ctx, db, "Jane Doe", time.Time{})
	bio := testutil.SeedClass(t, ctx, db, types.SubjectScience, "Biology A", time.Time{})
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	labs := []*types.CurriculumItem{
		testutil.SeedCurriculumItem(t, ctx, db, bio.ID, "1.1.1 Cells", 10, base),
		testutil.SeedCurriculumItem(t, ctx, db, bio.ID, "1.1.2 Tissues", 10, base.Add(time.Minute)),
		testutil.SeedCurriculumItem(t, ctx, db, bio.ID, "1.2.1 Organs", 10, base.Add(2*time.Minute)),
	}
	return fixture{
		db:   db,
		set:  set,
		proj: New(db, testutil.Logger(t), set, 0),
		pair: types.PairKey{StudentID: jane.ID, ClassID: bio.ID},
		labs: labs,
	}
}

func entry(label, status string, score float64) types.SnapshotEntry {
	return types.SnapshotEntry{ActivityLabel: label, Status: status, Score: pointers.Float64(score), Possible: pointers.Float64(10)}
}

func TestProjectPairsWritesAggregatesAndRecords(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.SeedSnapshot(t, ctx, f.db, f.pair.StudentID, f.pair.ClassID, nil, []types.SnapshotEntry{
		entry("1.1.1 Cells", types.StatusComplete, 9),
		entry("1.1.2 Tissues", types.StatusIncomplete, 0),
		entry("Field Trip", types.StatusComplete, 10),
	})

	stats, err := f.proj.ProjectPairs(ctx, []types.PairKey{f.pair})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pairs)
	assert.Equal(t, 2, stats.RecordsUpserted)
	assert.Equal(t, 1, stats.EntriesUnresolved)

	dbc := dbctx.Context{Ctx: ctx}
	enr, err := f.set.Enrollments.GetByPairs(dbc, []types.PairKey{f.pair})
	require.NoError(t, err)
	require.NotNil(t, enr[f.pair])
	assert.Equal(t, 3, enr[f.pair].TotalCount)
	assert.Equal(t, 2, enr[f.pair].CompletedCount)
	require.NotNil(t, enr[f.pair].LastImportedAt)

	recs, err := f.set.Records.GetByEnrollmentIDs(dbc, []uuid.UUID{enr[f.pair].ID})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	byItem := map[uuid.UUID]*types.AssignmentRecord{}
	for _, r := range recs {
		byItem[r.CurriculumItemID] = r
	}
	assert.Equal(t, types.StatusComplete, byItem[f.labs[0].ID].Status)
	assert.Equal(t, types.StatusIncomplete, byItem[f.labs[1].ID].Status)
}

func TestProjectPairsRemovesStaleRecords(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	enr := testutil.SeedEnrollment(t, ctx, f.db, f.pair.StudentID, f.pair.ClassID)
	stale := testutil.SeedRecord(t, ctx, f.db, enr.ID, f.labs[2].ID, types.StatusComplete)
	testutil.SeedSnapshot(t, ctx, f.db, f.pair.StudentID, f.pair.ClassID, nil, []types.SnapshotEntry{
		entry("1.1.1 Cells", types.StatusComplete, 9),
	})

	stats, err := f.proj.ProjectPairs(ctx, []types.PairKey{f.pair})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RecordsDeleted)

	recs, err := f.set.Records.GetByEnrollmentIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{enr.ID})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, f.labs[0].ID, recs[0].CurriculumItemID)
	assert.NotEqual(t, stale.ID, recs[0].ID)
}

func TestProjectPairsNeverDowngradesCompletedItem(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	// Both labels resolve to the same item by code.
	testutil.SeedSnapshot(t, ctx, f.db, f.pair.StudentID, f.pair.ClassID, nil, []types.SnapshotEntry{
		entry("1.1.1 Cells", types.StatusComplete, 9),
		entry("1.1.1 Cells (retake)", types.StatusIncomplete, 0),
	})

	_, err := f.proj.ProjectPairs(ctx, []types.PairKey{f.pair})
	require.NoError(t, err)

	rows, err := f.set.Records.ListForStudent(dbctx.Context{Ctx: ctx}, f.pair.StudentID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, types.StatusComplete, rows[0].Status)
}

func TestProjectPairsFollowsFoldedItem(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	gone := uuid.New()
	testutil.SeedSnapshot(t, ctx, f.db, f.pair.StudentID, f.pair.ClassID, nil, []types.SnapshotEntry{
		{ActivityLabel: "Organs", Code: "1.2.1", CurriculumItemID: &gone, Status: types.StatusComplete},
	})

	stats, err := f.proj.ProjectPairs(ctx, []types.PairKey{f.pair})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RecordsUpserted)

	rows, err := f.set.Records.ListForStudent(dbctx.Context{Ctx: ctx}, f.pair.StudentID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, f.labs[2].ID, rows[0].CurriculumItemID)
}

func TestProjectPairsSkipsPairsWithoutSnapshot(t *testing.T) {
	f := setup(t)
	stats, err := f.proj.ProjectPairs(context.Background(), []types.PairKey{f.pair})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Pairs)
	assert.Equal(t, 1, stats.SkippedNoSnapshot)

	enr, err := f.set.Enrollments.GetByPairs(dbctx.Context{Ctx: context.Background()}, []types.PairKey{f.pair})
	require.NoError(t, err)
	assert.Empty(t, enr)
}

func TestRebuildAllIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.SeedSnapshot(t, ctx, f.db, f.pair.StudentID, f.pair.ClassID, nil, []types.SnapshotEntry{
		entry("1.1.1 Cells", types.StatusComplete, 9),
		entry("1.2.1 Organs", types.StatusComplete, 7),
	})
	ben := testutil.SeedStudent(t, ctx, f.db, "Ben Ng", time.Time{})
	testutil.SeedSnapshot(t, ctx, f.db, ben.ID, f.pair.ClassID, nil, []types.SnapshotEntry{
		entry("1.1.2 Tissues", types.StatusIncomplete, 2),
	})

	first, err := f.proj.RebuildAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Pairs)
	assert.Equal(t, 3, first.RecordsUpserted)

	second, err := f.proj.RebuildAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, second.RecordsUpserted)
	assert.Equal(t, 0, second.RecordsDeleted)

	counts, err := f.set.Records.CountByStudentIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{f.pair.StudentID, ben.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, counts[f.pair.StudentID])
	assert.Equal(t, 1, counts[ben.ID])
}
