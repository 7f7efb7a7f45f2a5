package sweeper

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
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
	apperrors "github.com/yungbote/gradebridge-backend/internal/platform/errors"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/hierarchy"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/projector"
)

var t0 = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

func day(s string) *time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return &t
}

type fixture struct {
	ctx  context.Context
	db   *gorm.DB
	set  repos.Set
	proj *projector.Projector
	sw   *Sweeper
}

func setup(t *testing.T, opts Options) fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	proj := projector.New(db, log, set, 0)
	return fixture{
		ctx:  context.Background(),
		db:   db,
		set:  set,
		proj: proj,
		sw:   New(db, log, set, proj, opts),
	}
}

func (f fixture) dbc() dbctx.Context { return dbctx.Context{Ctx: f.ctx} }

func itemTitles(t *testing.T, f fixture, classID uuid.UUID) []string {
	t.Helper()
	items, err := f.set.Items.GetByClassIDs(f.dbc(), []uuid.UUID{classID})
	require.NoError(t, err)
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Title)
	}
	sort.Strings(out)
	return out
}

func TestClassDedupConverges(t *testing.T) {
	f := setup(t, Options{})
	bioOld := testutil.SeedClass(t, f.ctx, f.db, types.SubjectScience, "Biology A", t0)
	bioNew := testutil.SeedClass(t, f.ctx, f.db, types.SubjectScience, "biology  a", t0.Add(time.Hour))
	testutil.SeedCurriculumItem(t, f.ctx, f.db, bioOld.ID, "Lab 1", 10, t0)
	testutil.SeedCurriculumItem(t, f.ctx, f.db, bioNew.ID, "Lab 2", 10, t0)
	jane := testutil.SeedStudent(t, f.ctx, f.db, "Jane Doe", t0)
	ben := testutil.SeedStudent(t, f.ctx, f.db, "Ben Ng", t0)
	testutil.SeedSnapshot(t, f.ctx, f.db, jane.ID, bioOld.ID, day("2025-09-01"), []types.SnapshotEntry{
		{ActivityLabel: "Lab 1", Status: types.StatusComplete},
	})
	testutil.SeedSnapshot(t, f.ctx, f.db, jane.ID, bioNew.ID, day("2025-08-01"), []types.SnapshotEntry{
		{ActivityLabel: "Lab 2", Status: types.StatusIncomplete},
	})
	testutil.SeedSnapshot(t, f.ctx, f.db, ben.ID, bioNew.ID, day("2025-08-01"), []types.SnapshotEntry{
		{ActivityLabel: "Lab 2", Status: types.StatusComplete},
	})
	_, err := f.proj.RebuildAll(f.ctx)
	require.NoError(t, err)

	rep, err := f.sw.Run(f.ctx, PassClassDedup, "test")
	require.NoError(t, err)
	assert.Equal(t, types.SweepStatusSucceeded, rep.Status)
	assert.Equal(t, 1, rep.Counts["classes_deleted"])
	assert.Equal(t, 1, rep.Counts["snapshots_merged"])
	assert.Equal(t, 1, rep.Counts["snapshots_rehomed"])
	assert.Equal(t, 1, rep.Counts["items_moved"])
	assert.Empty(t, rep.Errors)

	classes, err := f.set.Classes.ListAll(f.dbc())
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, bioOld.ID, classes[0].ID)
	assert.Equal(t, []string{"Lab 1", "Lab 2"}, itemTitles(t, f, bioOld.ID))

	janeSnap, err := f.set.Snapshots.GetByPair(f.dbc(), types.PairKey{StudentID: jane.ID, ClassID: bioOld.ID}, false)
	require.NoError(t, err)
	require.NotNil(t, janeSnap)
	assert.Equal(t, 2, janeSnap.TotalCount)
	require.NotNil(t, janeSnap.Freshness)
	assert.True(t, janeSnap.Freshness.Equal(*day("2025-09-01")))

	benSnap, err := f.set.Snapshots.GetByPair(f.dbc(), types.PairKey{StudentID: ben.ID, ClassID: bioOld.ID}, false)
	require.NoError(t, err)
	require.NotNil(t, benSnap)

	stale, err := f.set.Enrollments.GetByClassIDs(f.dbc(), []uuid.UUID{bioNew.ID})
	require.NoError(t, err)
	assert.Empty(t, stale)

	rows, err := f.set.Records.ListForStudent(f.dbc(), jane.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	again, err := f.sw.Run(f.ctx, PassClassDedup, "test")
	require.NoError(t, err)
	assert.Empty(t, again.Counts)
}

func TestCurriculumDedupRepointsRecords(t *testing.T) {
	f := setup(t, Options{})
	bio := testutil.SeedClass(t, f.ctx, f.db, types.SubjectScience, "Biology A", t0)
	keep := testutil.SeedCurriculumItem(t, f.ctx, f.db, bio.ID, "Lab 1", 10, t0)
	dup := testutil.SeedCurriculumItem(t, f.ctx, f.db, bio.ID, "lab 1", 10, t0.Add(time.Minute))
	testutil.SeedCurriculumItem(t, f.ctx, f.db, bio.ID, "Lab 2", 10, t0.Add(2*time.Minute))
	jane := testutil.SeedStudent(t, f.ctx, f.db, "Jane Doe", t0)
	ben := testutil.SeedStudent(t, f.ctx, f.db, "Ben Ng", t0)
	janeEnr := testutil.SeedEnrollment(t, f.ctx, f.db, jane.ID, bio.ID)
	benEnr := testutil.SeedEnrollment(t, f.ctx, f.db, ben.ID, bio.ID)
	testutil.SeedRecord(t, f.ctx, f.db, janeEnr.ID, keep.ID, types.StatusComplete)
	testutil.SeedRecord(t, f.ctx, f.db, janeEnr.ID, dup.ID, types.StatusIncomplete)
	testutil.SeedRecord(t, f.ctx, f.db, benEnr.ID, dup.ID, types.StatusComplete)
	dupID := dup.ID
	testutil.SeedSnapshot(t, f.ctx, f.db, ben.ID, bio.ID, nil, []types.SnapshotEntry{
		{ActivityLabel: "lab 1", CurriculumItemID: &dupID, Status: types.StatusComplete},
	})

	rep, err := f.sw.Run(f.ctx, PassCurriculumDedup, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Counts["items_deleted"])
	assert.Equal(t, 1, rep.Counts["records_deleted"])
	assert.Equal(t, 1, rep.Counts["records_repointed"])
	assert.Equal(t, 1, rep.Counts["snapshot_entries_repointed"])

	assert.Equal(t, []string{"Lab 1", "Lab 2"}, itemTitles(t, f, bio.ID))
	recs, err := f.set.Records.GetByCurriculumItemIDs(f.dbc(), []uuid.UUID{keep.ID})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	snap, err := f.set.Snapshots.GetByPair(f.dbc(), types.PairKey{StudentID: ben.ID, ClassID: bio.ID}, false)
	require.NoError(t, err)
	entries, err := snap.DecodeEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].CurriculumItemID)
	assert.Equal(t, keep.ID, *entries[0].CurriculumItemID)

	again, err := f.sw.Run(f.ctx, PassCurriculumDedup, "test")
	require.NoError(t, err)
	assert.Empty(t, again.Counts)
}

func TestOrphanPurgeRemovesCrossClassAndDeadRows(t *testing.T) {
	f := setup(t, Options{})
	bio := testutil.SeedClass(t, f.ctx, f.db, types.SubjectScience, "Biology A", t0)
	chem := testutil.SeedClass(t, f.ctx, f.db, types.SubjectScience, "Chemistry", t0)
	lab := testutil.SeedCurriculumItem(t, f.ctx, f.db, bio.ID, "Lab 1", 10, t0)
	titration := testutil.SeedCurriculumItem(t, f.ctx, f.db, chem.ID, "Titration", 10, t0)
	jane := testutil.SeedStudent(t, f.ctx, f.db, "Jane Doe", t0)
	ghost := testutil.SeedStudent(t, f.ctx, f.db, "Gone Away", t0)
	enr := testutil.SeedEnrollment(t, f.ctx, f.db, jane.ID, bio.ID)
	good := testutil.SeedRecord(t, f.ctx, f.db, enr.ID, lab.ID, types.StatusComplete)
	testutil.SeedRecord(t, f.ctx, f.db, enr.ID, titration.ID, types.StatusComplete)
	ghostEnr := testutil.SeedEnrollment(t, f.ctx, f.db, ghost.ID, bio.ID)
	testutil.SeedRecord(t, f.ctx, f.db, ghostEnr.ID, lab.ID, types.StatusIncomplete)
	testutil.SeedSnapshot(t, f.ctx, f.db, ghost.ID, bio.ID, nil, nil)
	_, err := f.set.Students.DeleteByIDs(f.dbc(), []uuid.UUID{ghost.ID})
	require.NoError(t, err)

	rep, err := f.sw.Run(f.ctx, PassOrphanPurge, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Counts["enrollments_deleted"])
	assert.Equal(t, 2, rep.Counts["records_deleted"])
	assert.Equal(t, 1, rep.Counts["snapshots_deleted"])

	recs, err := f.set.Records.GetByEnrollmentIDs(f.dbc(), []uuid.UUID{enr.ID})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, good.ID, recs[0].ID)

	again, err := f.sw.Run(f.ctx, PassOrphanPurge, "test")
	require.NoError(t, err)
	assert.Empty(t, again.Counts)
}

func TestStudentDedupKeepsRichestHistory(t *testing.T) {
	f := setup(t, Options{})
	bio := testutil.SeedClass(t, f.ctx, f.db, types.SubjectScience, "Biology A", t0)
	chem := testutil.SeedClass(t, f.ctx, f.db, types.SubjectScience, "Chemistry", t0)
	testutil.SeedCurriculumItem(t, f.ctx, f.db, chem.ID, "Titration", 10, t0)
	older := testutil.SeedStudent(t, f.ctx, f.db, "Jane Doe", t0)
	newer := testutil.SeedStudent(t, f.ctx, f.db, "Doe, Jane", t0.Add(time.Hour))
	testutil.SeedSnapshot(t, f.ctx, f.db, newer.ID, bio.ID, nil, []types.SnapshotEntry{
		{ActivityLabel: "Lab 1", Status: types.StatusComplete},
		{ActivityLabel: "Lab 2", Status: types.StatusComplete},
		{ActivityLabel: "Lab 3", Status: types.StatusIncomplete},
	})
	testutil.SeedSnapshot(t, f.ctx, f.db, older.ID, bio.ID, nil, []types.SnapshotEntry{
		{ActivityLabel: "Lab 1", Status: types.StatusComplete},
	})
	testutil.SeedSnapshot(t, f.ctx, f.db, older.ID, chem.ID, nil, []types.SnapshotEntry{
		{ActivityLabel: "Titration", Status: types.StatusComplete},
	})

	rep, err := f.sw.Run(f.ctx, PassStudentDedup, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Counts["students_deleted"])
	assert.Equal(t, 1, rep.Counts["snapshots_rehomed"])
	assert.Equal(t, 1, rep.Counts["snapshots_deleted"])
	assert.Equal(t, 1, rep.Counts["pairs_projected"])

	students, err := f.set.Students.ListAll(f.dbc())
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, newer.ID, students[0].ID)

	snaps, err := f.set.Snapshots.GetByStudentIDs(f.dbc(), []uuid.UUID{newer.ID})
	require.NoError(t, err)
	assert.Len(t, snaps, 2)

	rows, err := f.set.Records.ListForStudent(f.dbc(), newer.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Titration", rows[0].ItemTitle)

	again, err := f.sw.Run(f.ctx, PassStudentDedup, "test")
	require.NoError(t, err)
	assert.Empty(t, again.Counts)
}

func TestEnforceCurriculum(t *testing.T) {
	f := setup(t, Options{})
	bio := testutil.SeedClass(t, f.ctx, f.db, types.SubjectScience, "Biology A", t0)
	testutil.SeedCurriculumItem(t, f.ctx, f.db, bio.ID, "Lab 1", 10, t0)
	testutil.SeedCurriculumItem(t, f.ctx, f.db, bio.ID, "Lab 2", 10, t0)
	old := testutil.SeedCurriculumItem(t, f.ctx, f.db, bio.ID, "Old Lab", 10, t0)
	jane := testutil.SeedStudent(t, f.ctx, f.db, "Jane Doe", t0)
	enr := testutil.SeedEnrollment(t, f.ctx, f.db, jane.ID, bio.ID)
	testutil.SeedRecord(t, f.ctx, f.db, enr.ID, old.ID, types.StatusComplete)

	specs := []hierarchy.ClassSpec{
		{Subject: types.SubjectScience, Title: "Biology A", Curriculum: []hierarchy.ItemEntry{{Title: "Lab 1"}, {Title: "Lab 2"}, {Title: "1.3.1 Lab 3", Points: 20}}},
		{Subject: types.SubjectMath, Title: "Algebra I", Curriculum: []hierarchy.ItemEntry{{Title: "Unit 1"}}},
	}
	rep, err := f.sw.Enforce(f.ctx, specs, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Counts["items_deleted"])
	assert.Equal(t, 1, rep.Counts["items_created"])
	assert.Equal(t, 1, rep.Counts["records_deleted"])
	assert.Equal(t, 1, rep.Counts["classes_missing"])
	assert.Len(t, rep.Errors, 1)
	assert.Equal(t, []string{"1.3.1 Lab 3", "Lab 1", "Lab 2"}, itemTitles(t, f, bio.ID))

	again, err := f.sw.Enforce(f.ctx, specs, "test")
	require.NoError(t, err)
	assert.Zero(t, again.Counts["items_deleted"])
	assert.Zero(t, again.Counts["items_created"])
}

func TestRunRecordsAuditRow(t *testing.T) {
	f := setup(t, Options{})
	rep, err := f.sw.Run(f.ctx, PassAll, "cli")
	require.NoError(t, err)

	runs, err := f.set.SweepRuns.ListRecent(f.dbc(), PassAll, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, rep.RunID, runs[0].ID)
	assert.Equal(t, types.SweepStatusSucceeded, runs[0].Status)
	assert.Equal(t, "cli", runs[0].TriggeredBy)
	require.NotNil(t, runs[0].FinishedAt)
	var errs []string
	require.NoError(t, json.Unmarshal(runs[0].Errors, &errs))
	assert.Empty(t, errs)
}

func TestRunRejectsUnknownPassAndMissingCanonical(t *testing.T) {
	f := setup(t, Options{})
	_, err := f.sw.Run(f.ctx, "vacuum", "test")
	assert.ErrorIs(t, err, ErrUnknownPass)
	_, err = f.sw.Run(f.ctx, PassCurriculumEnforce, "test")
	assert.ErrorIs(t, err, ErrNoCanonical)
}

type heldLock struct{}

func (heldLock) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, false, nil
}

func TestRunYieldsToRemoteHolder(t *testing.T) {
	f := setup(t, Options{Lock: heldLock{}})
	_, err := f.sw.Run(f.ctx, PassOrphanPurge, "test")
	assert.ErrorIs(t, err, ErrSweepInProgress)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	runs, err := f.set.SweepRuns.ListRecent(f.dbc(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

// gateLock parks the first TryLock until open is closed; later calls acquire immediately.
type gateLock struct {
	once    sync.Once
	entered chan struct{}
	open    chan struct{}
}

func newGateLock() *gateLock {
	return &gateLock{entered: make(chan struct{}), open: make(chan struct{})}
}

func (g *gateLock) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.open
	}
	return func() {}, true, nil
}

func TestConcurrentEnforceAppliesEachList(t *testing.T) {
	gate := newGateLock()
	f := setup(t, Options{Lock: gate})
	bio := testutil.SeedClass(t, f.ctx, f.db, types.SubjectScience, "Biology A", t0)
	alg := testutil.SeedClass(t, f.ctx, f.db, types.SubjectMath, "Algebra I", t0)

	bioSpecs := []hierarchy.ClassSpec{{Subject: types.SubjectScience, Title: "Biology A", Curriculum: []hierarchy.ItemEntry{{Title: "Lab 1"}}}}
	algSpecs := []hierarchy.ClassSpec{{Subject: types.SubjectMath, Title: "Algebra I", Curriculum: []hierarchy.ItemEntry{{Title: "Unit 1"}}}}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = f.sw.Enforce(f.ctx, bioSpecs, "test")
	}()
	<-gate.entered
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[1] = f.sw.Enforce(f.ctx, algSpecs, "test")
	}()
	time.Sleep(50 * time.Millisecond)
	close(gate.open)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, []string{"Lab 1"}, itemTitles(t, f, bio.ID))
	assert.Equal(t, []string{"Unit 1"}, itemTitles(t, f, alg.ID))
}

func TestJoinedSweepSurvivesFirstCallerCancel(t *testing.T) {
	gate := newGateLock()
	f := setup(t, Options{Lock: gate})

	firstCtx, cancel := context.WithCancel(f.ctx)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = f.sw.Run(firstCtx, PassOrphanPurge, "test")
	}()
	<-gate.entered
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[1] = f.sw.Run(f.ctx, PassOrphanPurge, "test")
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	close(gate.open)
	wg.Wait()

	assert.NoError(t, errs[1])
	runs, err := f.set.SweepRuns.ListRecent(f.dbc(), PassOrphanPurge, 10)
	require.NoError(t, err)
	for _, r := range runs {
		assert.Equal(t, types.SweepStatusSucceeded, r.Status)
	}
}

func TestFlightKeySeparatesCanonicalLists(t *testing.T) {
	a, err := flightKey(PassCurriculumEnforce, []hierarchy.ClassSpec{{Subject: types.SubjectMath, Title: "Algebra I"}})
	require.NoError(t, err)
	b, err := flightKey(PassCurriculumEnforce, []hierarchy.ClassSpec{{Subject: types.SubjectScience, Title: "Biology A"}})
	require.NoError(t, err)
	same, err := flightKey(PassCurriculumEnforce, []hierarchy.ClassSpec{{Subject: types.SubjectMath, Title: "Algebra I"}})
	require.NoError(t, err)
	plain, err := flightKey(PassOrphanPurge, nil)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, same)
	assert.Equal(t, PassOrphanPurge, plain)
}
