package merge

import (
	"strings"
	"time"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/normalization"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
	"01/02/06",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"Mon, Jan 2, 2006",
}

// NormalizeDate renders a parseable date as YYYY-MM-DD and returns anything else trimmed.
func NormalizeDate(raw string) string {
	s := normalization.CollapseSpace(raw)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

func NormalizeStatus(raw string) string {
	switch strings.ToLower(normalization.CollapseSpace(raw)) {
	case "complete", "completed", "done", "submitted", "turned in", "graded", "excused":
		return types.StatusComplete
	default:
		return types.StatusIncomplete
	}
}

// NormalizePercentage scales fractional percentages (0 < p < 1) to 0-100.
func NormalizePercentage(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	if v > 0 && v < 1 {
		v *= 100
	}
	return &v
}

// NormalizeEntries returns a cleaned copy of entries: labels collapsed, dates and statuses
// canonical, percentages on the 0-100 scale. Entries without a label are dropped.
func NormalizeEntries(entries []types.SnapshotEntry) []types.SnapshotEntry {
	out := make([]types.SnapshotEntry, 0, len(entries))
	for _, e := range entries {
		e.ActivityLabel = normalization.Title(e.ActivityLabel)
		if e.ActivityLabel == "" {
			continue
		}
		e.Date = NormalizeDate(e.Date)
		e.Status = NormalizeStatus(e.Status)
		e.Percentage = NormalizePercentage(e.Percentage)
		out = append(out, e)
	}
	return out
}

type entryKey struct {
	label string
	date  string
}

func keyOf(e types.SnapshotEntry) entryKey {
	return entryKey{label: normalization.Title(e.ActivityLabel), date: e.Date}
}

// Dedupe keeps the first entry for each (trimmed label, date).
func Dedupe(entries []types.SnapshotEntry) []types.SnapshotEntry {
	seen := make(map[entryKey]bool, len(entries))
	out := make([]types.SnapshotEntry, 0, len(entries))
	for _, e := range entries {
		k := keyOf(e)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}
