package merge

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/platform/pointers"
)

func day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

// entries builds n entries labeled prefix1..prefixN with the first `complete` marked complete.
func entries(prefix string, n, complete int) []types.SnapshotEntry {
	out := make([]types.SnapshotEntry, 0, n)
	for i := 0; i < n; i++ {
		status := types.StatusIncomplete
		if i < complete {
			status = types.StatusComplete
		}
		out = append(out, types.SnapshotEntry{
			ActivityLabel: fmt.Sprintf("%s %d", prefix, i+1),
			Date:          "2025-08-20",
			Status:        status,
		})
	}
	return out
}

func TestDecide(t *testing.T) {
	assert.Equal(t, ModeReplace, Decide(false, nil, nil))
	assert.Equal(t, ModeReplace, Decide(true, nil, day("2025-01-01")))
	assert.Equal(t, ModeReplace, Decide(true, day("2025-09-01"), day("2025-09-15")))
	assert.Equal(t, ModeMerge, Decide(true, day("2025-09-01"), day("2025-09-01")))
	assert.Equal(t, ModeMerge, Decide(true, day("2025-09-01"), day("2025-08-01")))
	assert.Equal(t, ModeMerge, Decide(true, day("2025-09-01"), nil))
}

func TestNewerFileReplaces(t *testing.T) {
	existing := &Existing{Entries: entries("Lab", 10, 6), Freshness: day("2025-09-01")}
	incoming := entries("Unit", 12, 8)

	out := Apply(existing, incoming, day("2025-09-15"))
	assert.Equal(t, ModeReplace, out.Mode)
	assert.True(t, out.Changed)
	assert.Equal(t, 12, out.Total)
	assert.Equal(t, 8, out.Completed)
	require.NotNil(t, out.Freshness)
	assert.True(t, out.Freshness.Equal(*day("2025-09-15")))
}

func TestOlderFileMerges(t *testing.T) {
	existing := &Existing{Entries: entries("Lab", 10, 6), Freshness: day("2025-09-01")}
	incoming := append(entries("Lab", 10, 10), entries("Bonus", 3, 0)...)

	out := Apply(existing, incoming, day("2025-08-01"))
	assert.Equal(t, ModeMerge, out.Mode)
	assert.Equal(t, 3, out.Added)
	assert.Equal(t, 13, out.Total)
	assert.Equal(t, 6, out.Completed, "existing entries are never overwritten")
	require.NotNil(t, out.Freshness)
	assert.True(t, out.Freshness.Equal(*day("2025-09-01")))
}

func TestMergeIsIdempotent(t *testing.T) {
	existing := &Existing{Entries: entries("Lab", 4, 2), Freshness: day("2025-09-01")}
	out := Apply(existing, entries("Lab", 4, 2), day("2025-09-01"))
	assert.Equal(t, ModeMerge, out.Mode)
	assert.False(t, out.Changed)
	assert.Equal(t, 0, out.Added)

	first := Apply(nil, entries("Lab", 4, 2), nil)
	again := Apply(&Existing{Entries: first.Entries, Freshness: first.Freshness}, entries("Lab", 4, 2), nil)
	assert.Equal(t, ModeReplace, again.Mode)
	assert.False(t, again.Changed, "replaying an undated file is a no-op")
}

func TestMergeDedupesIncoming(t *testing.T) {
	existing := &Existing{Entries: entries("Lab", 1, 1), Freshness: day("2025-09-01")}
	incoming := []types.SnapshotEntry{
		{ActivityLabel: "Quiz", Date: "9/2/2025", Status: "Done"},
		{ActivityLabel: "  Quiz ", Date: "2025-09-02", Status: "incomplete"},
		{ActivityLabel: "Quiz", Date: "2025-09-03"},
		{ActivityLabel: "Lab 1", Date: "08/20/2025"},
	}
	out := Apply(existing, incoming, nil)
	assert.Equal(t, ModeMerge, out.Mode)
	assert.Equal(t, 2, out.Added)
	require.Len(t, out.Entries, 3)
	assert.Equal(t, "2025-09-02", out.Entries[1].Date)
	assert.Equal(t, types.StatusComplete, out.Entries[1].Status)
	assert.Equal(t, "2025-09-03", out.Entries[2].Date)
}

func TestResolveFreshness(t *testing.T) {
	declared, mod := day("2025-09-15"), day("2025-09-20")
	assert.Equal(t, declared, ResolveFreshness(declared, mod))
	assert.Equal(t, mod, ResolveFreshness(nil, mod))
	assert.Nil(t, ResolveFreshness(nil, nil))
	assert.Nil(t, ResolveFreshness(&time.Time{}, nil))
}

func TestAggregate(t *testing.T) {
	agg := Aggregate(nil)
	assert.Nil(t, agg.Average)

	agg = Aggregate([]types.SnapshotEntry{
		{Score: pointers.Float64(8), Possible: pointers.Float64(10), Status: types.StatusComplete},
		{Score: pointers.Float64(15), Possible: pointers.Float64(30), Status: types.StatusComplete},
		{Status: types.StatusIncomplete},
	})
	require.NotNil(t, agg.Average)
	// (80*10 + 50*30) / 40
	assert.InDelta(t, 57.5, *agg.Average, 1e-9)
	assert.Equal(t, 3, agg.Total)
	assert.Equal(t, 2, agg.Completed)

	// Percentage-only entries weigh the mean possible (20) of the point-bearing ones.
	agg = Aggregate([]types.SnapshotEntry{
		{Score: pointers.Float64(8), Possible: pointers.Float64(10)},
		{Score: pointers.Float64(15), Possible: pointers.Float64(30)},
		{Percentage: pointers.Float64(0.9)},
	})
	require.NotNil(t, agg.Average)
	assert.InDelta(t, (800.0+1500.0+90.0*20)/60.0, *agg.Average, 1e-9)

	agg = Aggregate([]types.SnapshotEntry{
		{Percentage: pointers.Float64(80)},
		{Percentage: pointers.Float64(0.5)},
	})
	require.NotNil(t, agg.Average)
	assert.InDelta(t, 65.0, *agg.Average, 1e-9)
}

func TestNormalizeEntries(t *testing.T) {
	out := NormalizeEntries([]types.SnapshotEntry{
		{ActivityLabel: "   ", Status: "complete"},
		{ActivityLabel: " Essay  1 ", Date: "Sep 3, 2025", Status: "Turned In", Percentage: pointers.Float64(0.75)},
		{ActivityLabel: "Essay 2", Date: "sometime", Percentage: pointers.Float64(1)},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "Essay 1", out[0].ActivityLabel)
	assert.Equal(t, "2025-09-03", out[0].Date)
	assert.Equal(t, types.StatusComplete, out[0].Status)
	assert.InDelta(t, 75.0, *out[0].Percentage, 1e-9)
	assert.Equal(t, "sometime", out[1].Date)
	assert.Equal(t, types.StatusIncomplete, out[1].Status)
	assert.InDelta(t, 1.0, *out[1].Percentage, 1e-9)
}
