package activity

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/normalization"
)

type Mode string

const (
	ModeExactTitle     Mode = "exact_title"
	ModeStructuredCode Mode = "structured_code"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(normalization.ParseInputString(s)) {
	case "", ModeExactTitle:
		return ModeExactTitle, nil
	case ModeStructuredCode:
		return ModeStructuredCode, nil
	default:
		return "", fmt.Errorf("unknown match mode %q", s)
	}
}

type MatchedBy string

const (
	ByStoredID MatchedBy = "stored_id"
	ByTitle    MatchedBy = "title"
	ByCode     MatchedBy = "code"
)

type Item struct {
	ID        uuid.UUID
	ClassID   uuid.UUID
	Title     string
	TitleKey  string
	Code      string
	Points    float64
	CreatedAt int64
}

type Match struct {
	Item Item
	By   MatchedBy
}

// Unmatched is an entry the matcher dropped, with the reason it was dropped.
type Unmatched struct {
	ActivityLabel string `json:"activity_label"`
	Reason        string `json:"reason"`
}

type titleKey struct {
	classID uuid.UUID
	title   string
}

type codeKey struct {
	classID uuid.UUID
	code    string
}

// Index is the read-only lookup over the curriculum of the classes one batch touches. It never
// changes after construction, so matching is safe from many goroutines.
type Index struct {
	byID    map[uuid.UUID]Item
	byTitle map[titleKey]Item
	byCode  map[codeKey][]Item
}

func NewIndex(items []*types.CurriculumItem) *Index {
	ix := &Index{
		byID:    map[uuid.UUID]Item{},
		byTitle: map[titleKey]Item{},
		byCode:  map[codeKey][]Item{},
	}
	sorted := make([]Item, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		code := it.Code
		if code == "" {
			code = normalization.StructuredCode(it.Title)
		}
		sorted = append(sorted, Item{
			ID:        it.ID,
			ClassID:   it.ClassID,
			Title:     normalization.Title(it.Title),
			TitleKey:  normalization.TitleKey(it.Title),
			Code:      code,
			Points:    it.Points,
			CreatedAt: it.CreatedAt.UnixNano(),
		})
	}
	// Earliest first so duplicate titles resolve to the oldest row.
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt != sorted[j].CreatedAt {
			return sorted[i].CreatedAt < sorted[j].CreatedAt
		}
		return sorted[i].ID.String() < sorted[j].ID.String()
	})
	for _, it := range sorted {
		ix.byID[it.ID] = it
		tk := titleKey{it.ClassID, it.Title}
		if _, ok := ix.byTitle[tk]; !ok {
			ix.byTitle[tk] = it
		}
		if it.Code != "" {
			ck := codeKey{it.ClassID, it.Code}
			ix.byCode[ck] = append(ix.byCode[ck], it)
		}
	}
	return ix
}

func (ix *Index) Item(id uuid.UUID) (Item, bool) {
	it, ok := ix.byID[id]
	return it, ok
}

// Match resolves one activity label inside classID. Exact title always wins; structured-code
// mode then falls back to the label's D.D.D code, which must identify a single title.
func (ix *Index) Match(classID uuid.UUID, label string, mode Mode) (Match, string) {
	title := normalization.Title(label)
	if title == "" {
		return Match{}, "empty activity label"
	}
	if it, ok := ix.byTitle[titleKey{classID, title}]; ok {
		return Match{Item: it, By: ByTitle}, ""
	}
	if mode != ModeStructuredCode {
		return Match{}, "no curriculum item with this exact title"
	}
	code := normalization.StructuredCode(label)
	if code == "" {
		return Match{}, "no exact title match and no structured code in label"
	}
	return ix.matchCode(classID, code)
}

func (ix *Index) matchCode(classID uuid.UUID, code string) (Match, string) {
	cands := ix.byCode[codeKey{classID, code}]
	if len(cands) == 0 {
		return Match{}, fmt.Sprintf("unknown code %s", code)
	}
	for _, c := range cands[1:] {
		if c.TitleKey != cands[0].TitleKey {
			return Match{}, fmt.Sprintf("ambiguous code %s", code)
		}
	}
	return Match{Item: cands[0], By: ByCode}, ""
}

// Resolve is the projector's lookup for a stored snapshot entry: the remembered item if it is
// still live in the same class, then exact title, then code.
func (ix *Index) Resolve(classID uuid.UUID, e types.SnapshotEntry) (Match, bool) {
	if e.CurriculumItemID != nil {
		if it, ok := ix.byID[*e.CurriculumItemID]; ok && it.ClassID == classID {
			return Match{Item: it, By: ByStoredID}, true
		}
	}
	if m, reason := ix.Match(classID, e.ActivityLabel, ModeStructuredCode); reason == "" {
		return m, true
	}
	if e.Code != "" {
		if m, reason := ix.matchCode(classID, e.Code); reason == "" {
			return m, true
		}
	}
	return Match{}, false
}

// MatchEntries keeps the entries that resolve, stamping each with its item id and code, and
// reports the rest. Unmatched entries are never turned into new curriculum items.
func (ix *Index) MatchEntries(classID uuid.UUID, entries []types.SnapshotEntry, mode Mode) ([]types.SnapshotEntry, []Unmatched) {
	matched := make([]types.SnapshotEntry, 0, len(entries))
	var dropped []Unmatched
	for _, e := range entries {
		m, reason := ix.Match(classID, e.ActivityLabel, mode)
		if reason != "" {
			dropped = append(dropped, Unmatched{ActivityLabel: e.ActivityLabel, Reason: reason})
			continue
		}
		id := m.Item.ID
		e.CurriculumItemID = &id
		e.Code = m.Item.Code
		matched = append(matched, e)
	}
	return matched, dropped
}
