package snapshot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/gradebridge-backend/internal/data/repos"
	"github.com/yungbote/gradebridge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/merge"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/reconerr"
)

func day(s string) *time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return &t
}

func entries(prefix string, n, complete int) []types.SnapshotEntry {
	out := make([]types.SnapshotEntry, 0, n)
	for i := 0; i < n; i++ {
		status := types.StatusIncomplete
		if i < complete {
			status = types.StatusComplete
		}
		out = append(out, types.SnapshotEntry{ActivityLabel: fmt.Sprintf("%s %d", prefix, i+1), Status: status})
	}
	return out
}

type fixture struct {
	store *Store
	set   repos.Set
	pair  types.PairKey
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := testutil.DB(t)
	ctx := context.Background()
	set := repos.NewSet(db, testutil.Logger(t))
	jane := testutil.SeedStudent(t, ctx, db, "Jane Doe", time.Time{})
	bio := testutil.SeedClass(t, ctx, db, types.SubjectScience, "Biology A", time.Time{})
	return fixture{
		store: NewStore(db, testutil.Logger(t), set),
		set:   set,
		pair:  types.PairKey{StudentID: jane.ID, ClassID: bio.ID},
	}
}

func TestUpsertNewerFileReplaces(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.store.Upsert(ctx, f.pair, day("2025-09-01"), entries("Lab", 10, 6), Meta{SourceFile: "aug.xlsx"})
	require.NoError(t, err)
	require.True(t, first.Accepted)
	assert.Equal(t, merge.ModeReplace, first.Mode)
	assert.Equal(t, 1, first.Version)

	res, err := f.store.Upsert(ctx, f.pair, day("2025-09-15"), entries("Unit", 12, 8), Meta{SourceFile: "sep.xlsx"})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, merge.ModeReplace, res.Mode)
	assert.Equal(t, 2, res.Version)

	stored, err := f.store.Get(ctx, f.pair)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 12, stored.TotalCount)
	assert.Equal(t, 8, stored.CompletedCount)
	assert.Equal(t, "sep.xlsx", stored.SourceFile)
	require.NotNil(t, stored.Freshness)
	assert.True(t, stored.Freshness.Equal(*day("2025-09-15")))
}

func TestUpsertOlderFileMerges(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.store.Upsert(ctx, f.pair, day("2025-09-01"), entries("Lab", 10, 6), Meta{})
	require.NoError(t, err)

	res, err := f.store.Upsert(ctx, f.pair, day("2025-08-01"), entries("Bonus", 3, 0), Meta{})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, merge.ModeMerge, res.Mode)
	assert.Equal(t, 3, res.Added)

	stored, err := f.store.Get(ctx, f.pair)
	require.NoError(t, err)
	assert.Equal(t, 13, stored.TotalCount)
	assert.Equal(t, 6, stored.CompletedCount)
	got, err := stored.DecodeEntries()
	require.NoError(t, err)
	assert.Len(t, got, 13)
	require.NotNil(t, stored.Freshness)
	assert.True(t, stored.Freshness.Equal(*day("2025-09-01")))
}

func TestUpsertIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.store.Upsert(ctx, f.pair, day("2025-09-01"), entries("Lab", 5, 2), Meta{})
	require.NoError(t, err)
	res, err := f.store.Upsert(ctx, f.pair, day("2025-09-01"), entries("Lab", 5, 2), Meta{})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, 1, res.Version, "a no-op merge does not bump the version")
}

func TestFreshnessNeverRegresses(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, d := range []string{"2025-09-10", "2025-08-01", "2025-09-20", "2025-09-05"} {
		_, err := f.store.Upsert(ctx, f.pair, day(d), entries("Item "+d, 2, 1), Meta{})
		require.NoError(t, err)
	}
	stored, err := f.store.Get(ctx, f.pair)
	require.NoError(t, err)
	require.NotNil(t, stored.Freshness)
	assert.True(t, stored.Freshness.Equal(*day("2025-09-20")))
}

func TestUpsertMissingRefsIsWriteConflict(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.store.Upsert(ctx, types.PairKey{StudentID: uuid.New(), ClassID: f.pair.ClassID}, nil, entries("Lab", 1, 1), Meta{})
	require.Error(t, err)
	assert.ErrorIs(t, err, reconerr.ErrWriteConflict)

	_, err = f.store.Upsert(ctx, types.PairKey{StudentID: f.pair.StudentID, ClassID: uuid.New()}, nil, entries("Lab", 1, 1), Meta{})
	assert.ErrorIs(t, err, reconerr.ErrWriteConflict)

	_, err = f.store.Upsert(ctx, types.PairKey{}, nil, nil, Meta{})
	assert.ErrorIs(t, err, reconerr.ErrInvalidRecord)
}

func TestConcurrentSamePairSerializes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.store.Upsert(ctx, f.pair, day("2025-09-01"), nil, Meta{})
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.store.Upsert(ctx, f.pair, day("2025-08-01"), entries(fmt.Sprintf("W%d", i), 2, 1), Meta{})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	stored, err := f.store.Get(ctx, f.pair)
	require.NoError(t, err)
	assert.Equal(t, writers*2, stored.TotalCount, "no merge may be lost")
	assert.Equal(t, writers+1, stored.Version)
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	unlock2 := k.Lock("b")
	unlock()
	unlock2()
	assert.Empty(t, k.locks)
}
