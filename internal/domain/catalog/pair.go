package catalog

import "github.com/google/uuid"

// PairKey identifies the (student, class) unit that snapshots and enrollments are keyed on.
type PairKey struct {
	StudentID uuid.UUID `json:"student_id"`
	ClassID   uuid.UUID `json:"class_id"`
}

func (p PairKey) String() string {
	return p.StudentID.String() + ":" + p.ClassID.String()
}

func (p PairKey) Valid() bool {
	return p.StudentID != uuid.Nil && p.ClassID != uuid.Nil
}

// UniquePairs drops invalid and repeated pairs, keeping first-seen order.
func UniquePairs(pairs []PairKey) []PairKey {
	seen := make(map[PairKey]bool, len(pairs))
	out := make([]PairKey, 0, len(pairs))
	for _, p := range pairs {
		if !p.Valid() || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
