package merge

import (
	"reflect"
	"time"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
)

type Mode string

const (
	ModeReplace Mode = "replace"
	ModeMerge   Mode = "merge"
)

// ResolveFreshness picks the declared freshness, else the file modification time, else nil.
func ResolveFreshness(declared, fileModified *time.Time) *time.Time {
	for _, t := range []*time.Time{declared, fileModified} {
		if t != nil && !t.IsZero() {
			v := t.UTC()
			return &v
		}
	}
	return nil
}

// Decide picks REPLACE or MERGE for one (student, class) pair.
func Decide(hasExisting bool, existing, incoming *time.Time) Mode {
	if !hasExisting || existing == nil {
		return ModeReplace
	}
	if incoming != nil && incoming.After(*existing) {
		return ModeReplace
	}
	return ModeMerge
}

type Existing struct {
	Entries   []types.SnapshotEntry
	Freshness *time.Time
}

type Outcome struct {
	Mode      Mode
	Entries   []types.SnapshotEntry
	Freshness *time.Time
	Added     int
	// Changed is false when applying the import leaves the snapshot exactly as it was.
	Changed bool
	Aggregates
}

// Apply runs the policy. existing is nil when the pair has no snapshot yet. Incoming entries are
// normalized and de-duplicated here; existing entries are taken as stored.
func Apply(existing *Existing, incoming []types.SnapshotEntry, incomingFreshness *time.Time) Outcome {
	clean := Dedupe(NormalizeEntries(incoming))
	var prevFresh *time.Time
	if existing != nil {
		prevFresh = existing.Freshness
	}
	mode := Decide(existing != nil, prevFresh, incomingFreshness)

	out := Outcome{Mode: mode}
	switch mode {
	case ModeReplace:
		out.Entries = clean
		out.Freshness = incomingFreshness
		out.Added = len(clean)
		out.Changed = existing == nil || !sameTime(prevFresh, incomingFreshness) || !reflect.DeepEqual(existing.Entries, clean)
	default:
		out.Entries = append([]types.SnapshotEntry{}, existing.Entries...)
		seen := make(map[entryKey]bool, len(existing.Entries))
		for _, e := range existing.Entries {
			seen[keyOf(e)] = true
		}
		for _, e := range clean {
			k := keyOf(e)
			if seen[k] {
				continue
			}
			seen[k] = true
			out.Entries = append(out.Entries, e)
			out.Added++
		}
		out.Freshness = prevFresh
		out.Changed = out.Added > 0
	}
	out.Aggregates = Aggregate(out.Entries)
	return out
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
