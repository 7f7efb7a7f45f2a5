package identity

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/normalization"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/hierarchy"
)

type ClassMatch struct {
	Label     string    `json:"class_label"`
	Title     string    `json:"title"`
	Key       string    `json:"key"`
	Subject   string    `json:"subject"`
	ClassID   uuid.UUID `json:"class_id,omitempty"`
	Found     bool      `json:"found"`
	Ambiguous bool      `json:"ambiguous,omitempty"`
}

type classEntry struct {
	id        uuid.UUID
	subject   string
	title     string
	createdAt time.Time
}

// ClassIndex resolves class labels against the classes fetched for one batch.
type ClassIndex struct {
	seed *hierarchy.Hierarchy

	mu    sync.RWMutex
	byKey map[string][]classEntry
}

func NewClassIndex(classes []*types.ClassOffering, seed *hierarchy.Hierarchy) *ClassIndex {
	ix := &ClassIndex{seed: seed, byKey: map[string][]classEntry{}}
	for _, c := range classes {
		if c != nil {
			ix.add(c)
		}
	}
	return ix
}

func (ix *ClassIndex) add(c *types.ClassOffering) {
	key := c.NormalizedTitle
	if key == "" {
		key = normalization.TitleKey(c.Title)
	}
	for _, e := range ix.byKey[key] {
		if e.id == c.ID {
			return
		}
	}
	list := append(ix.byKey[key], classEntry{id: c.ID, subject: c.SubjectCode, title: c.Title, createdAt: c.CreatedAt})
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].createdAt.Equal(list[j].createdAt) {
			return list[i].createdAt.Before(list[j].createdAt)
		}
		return list[i].id.String() < list[j].id.String()
	})
	ix.byKey[key] = list
}

// Add registers a class created after the index was built.
func (ix *ClassIndex) Add(c *types.ClassOffering) {
	if c == nil {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.add(c)
}

// Match resolves a class label. With a subject hint only that subject's classes qualify. Without
// one, a title found under a single subject resolves directly; otherwise the inferred subject
// decides. Duplicate rows resolve to the earliest. Found=false carries the subject a new class
// should be created under.
func (ix *ClassIndex) Match(label, subjectHint string) ClassMatch {
	title := normalization.Title(label)
	key := normalization.TitleKey(label)
	m := ClassMatch{Label: label, Title: title, Key: key}
	if key == "" {
		return m
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	entries := ix.byKey[key]

	if hint, ok := hierarchy.NormalizeSubject(subjectHint); ok {
		m.Subject = hint
		return pick(m, entries, hint)
	}

	subjects := map[string]bool{}
	for _, e := range entries {
		subjects[e.subject] = true
	}
	if len(subjects) == 1 {
		m.Subject = entries[0].subject
		return pick(m, entries, m.Subject)
	}

	m.Subject = hierarchy.InferSubject(title, ix.seed)
	m = pick(m, entries, m.Subject)
	if !m.Found && len(subjects) > 1 {
		m.Ambiguous = true
	}
	return m
}

func pick(m ClassMatch, entries []classEntry, subject string) ClassMatch {
	for _, e := range entries {
		if e.subject == subject {
			m.ClassID, m.Title, m.Found = e.id, e.title, true
			return m
		}
	}
	return m
}
