package activity

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/normalization"
)

var t0 = time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

func item(classID uuid.UUID, title string, created time.Time) *types.CurriculumItem {
	return &types.CurriculumItem{
		ID:              uuid.New(),
		ClassID:         classID,
		Title:           title,
		NormalizedTitle: normalization.TitleKey(title),
		Code:            normalization.StructuredCode(title),
		CreatedAt:       created,
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeExactTitle, m)
	m, err = ParseMode(" Structured_Code ")
	require.NoError(t, err)
	assert.Equal(t, ModeStructuredCode, m)
	_, err = ParseMode("fuzzy")
	assert.Error(t, err)
}

func TestMatchExactTitle(t *testing.T) {
	bio, chem := uuid.New(), uuid.New()
	cell := item(bio, "1.2.3 Cell Structure", t0)
	cellDup := item(bio, "1.2.3 Cell Structure", t0.Add(time.Hour))
	atoms := item(chem, "Atoms", t0)
	ix := NewIndex([]*types.CurriculumItem{cellDup, cell, atoms})

	m, reason := ix.Match(bio, "  1.2.3   Cell Structure ", ModeExactTitle)
	require.Empty(t, reason)
	assert.Equal(t, cell.ID, m.Item.ID, "duplicates resolve to the earliest item")
	assert.Equal(t, ByTitle, m.By)

	_, reason = ix.Match(bio, "1.2.3 cell structure", ModeExactTitle)
	assert.NotEmpty(t, reason, "exact-title mode has no case folding fallback")

	_, reason = ix.Match(bio, "1.2.3 Cell Structures (revised)", ModeExactTitle)
	assert.NotEmpty(t, reason)

	_, reason = ix.Match(bio, "Atoms", ModeExactTitle)
	assert.NotEmpty(t, reason, "items from another class never match")
}

func TestMatchStructuredCode(t *testing.T) {
	bio := uuid.New()
	cell := item(bio, "1.2.3 Cell Structure", t0)
	exact := item(bio, "1.2.3 Cell Structure Quiz", t0.Add(time.Minute))
	amb1 := item(bio, "2.1.1 Photosynthesis", t0)
	amb2 := item(bio, "2.1.1 Respiration", t0)
	ix := NewIndex([]*types.CurriculumItem{cell, exact, amb1, amb2})

	m, reason := ix.Match(bio, "1.2.3 Cell Structure Quiz", ModeStructuredCode)
	require.Empty(t, reason)
	assert.Equal(t, exact.ID, m.Item.ID, "exact title wins over a shared code")

	// Both items carry code 1.2.3 with different titles, so a code-only match is ambiguous.
	_, reason = ix.Match(bio, "1.2.3 Cells (retake)", ModeStructuredCode)
	assert.Contains(t, reason, "ambiguous")

	_, reason = ix.Match(bio, "2.1.1 Photosynthesis lab", ModeStructuredCode)
	assert.Contains(t, reason, "ambiguous")

	_, reason = ix.Match(bio, "9.9.9 Unknown", ModeStructuredCode)
	assert.Contains(t, reason, "unknown code")

	_, reason = ix.Match(bio, "Cell Structure", ModeStructuredCode)
	assert.Contains(t, reason, "no structured code")
}

func TestMatchCodeFallback(t *testing.T) {
	bio := uuid.New()
	cell := item(bio, "1.2.3 Cell Structure", t0)
	ix := NewIndex([]*types.CurriculumItem{cell})

	m, reason := ix.Match(bio, "1.2.3 Cell Structure - Worksheet", ModeStructuredCode)
	require.Empty(t, reason)
	assert.Equal(t, cell.ID, m.Item.ID)
	assert.Equal(t, ByCode, m.By)
}

func TestMatchEntries(t *testing.T) {
	bio := uuid.New()
	cell := item(bio, "1.2.3 Cell Structure", t0)
	ix := NewIndex([]*types.CurriculumItem{cell})

	kept, dropped := ix.MatchEntries(bio, []types.SnapshotEntry{
		{ActivityLabel: "1.2.3 Cell Structure", Status: types.StatusComplete},
		{ActivityLabel: "Field Trip", Status: types.StatusComplete},
	}, ModeExactTitle)
	require.Len(t, kept, 1)
	require.NotNil(t, kept[0].CurriculumItemID)
	assert.Equal(t, cell.ID, *kept[0].CurriculumItemID)
	assert.Equal(t, "1.2.3", kept[0].Code)
	require.Len(t, dropped, 1)
	assert.Equal(t, "Field Trip", dropped[0].ActivityLabel)
}

func TestResolve(t *testing.T) {
	bio, chem := uuid.New(), uuid.New()
	cell := item(bio, "1.2.3 Cell Structure", t0)
	atoms := item(chem, "Atoms", t0)
	ix := NewIndex([]*types.CurriculumItem{cell, atoms})

	dead := uuid.New()
	m, ok := ix.Resolve(bio, types.SnapshotEntry{ActivityLabel: "1.2.3 Cell Structure", CurriculumItemID: &dead})
	require.True(t, ok)
	assert.Equal(t, cell.ID, m.Item.ID)
	assert.Equal(t, ByTitle, m.By)

	foreign := atoms.ID
	m, ok = ix.Resolve(bio, types.SnapshotEntry{ActivityLabel: "Atoms", CurriculumItemID: &foreign})
	assert.False(t, ok, "an item of another class is never used")

	live := cell.ID
	m, ok = ix.Resolve(bio, types.SnapshotEntry{ActivityLabel: "renamed upstream", CurriculumItemID: &live})
	require.True(t, ok)
	assert.Equal(t, ByStoredID, m.By)

	m, ok = ix.Resolve(bio, types.SnapshotEntry{ActivityLabel: "Cells", Code: "1.2.3"})
	require.True(t, ok)
	assert.Equal(t, ByCode, m.By)
}
