package identity

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/gradebridge-backend/internal/data/repos"
	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/normalization"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/hierarchy"
)

// Resolver owns catalog lookups and lazy creation for students and classes.
type Resolver struct {
	log      *logger.Logger
	students repos.StudentRepo
	classes  repos.ClassOfferingRepo
	seed     *hierarchy.Hierarchy
	cfg      Config

	createMu sync.Mutex
}

func NewResolver(log *logger.Logger, students repos.StudentRepo, classes repos.ClassOfferingRepo, seed *hierarchy.Hierarchy, cfg Config) *Resolver {
	return &Resolver{
		log:      log.With("component", "IdentityResolver"),
		students: students,
		classes:  classes,
		seed:     seed,
		cfg:      cfg.withDefaults(),
	}
}

func (r *Resolver) Config() Config { return r.cfg }

// Fresh indexes force Ensure* to re-read the store, for retries after rows went missing.
func (r *Resolver) FreshStudentIndex() *StudentIndex { return NewStudentIndex(nil, r.cfg) }
func (r *Resolver) FreshClassIndex() *ClassIndex { return NewClassIndex(nil, r.seed) }

func (r *Resolver) LoadStudents(dbc dbctx.Context) (*StudentIndex, error) {
	rows, err := r.students.ListAll(dbc)
	if err != nil {
		return nil, fmt.Errorf("load students: %w", err)
	}
	return NewStudentIndex(rows, r.cfg), nil
}

// LoadClasses fetches every class whose normalized title appears among labels.
func (r *Resolver) LoadClasses(dbc dbctx.Context, labels []string) (*ClassIndex, error) {
	seen := map[string]bool{}
	keys := make([]string, 0, len(labels))
	for _, l := range labels {
		k := normalization.TitleKey(l)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	rows, err := r.classes.GetByNormalizedTitles(dbc, keys)
	if err != nil {
		return nil, fmt.Errorf("load classes: %w", err)
	}
	return NewClassIndex(rows, r.seed), nil
}

// EnsureStudent returns the student for label, creating it when neither the batch index nor a
// fresh read has it. Concurrent callers for the same name get the same row.
func (r *Resolver) EnsureStudent(dbc dbctx.Context, ix *StudentIndex, label string) (uuid.UUID, bool, error) {
	display := normalization.StudentName(label)
	key := normalization.StudentKey(label)
	if key == "" {
		return uuid.Nil, false, fmt.Errorf("empty student label")
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()

	ix.mu.RLock()
	hits := ix.byKey[key]
	ix.mu.RUnlock()
	if len(hits) > 0 {
		return hits[0].ID, false, nil
	}

	existing, err := r.students.GetByNormalizedNames(dbc, []string{key})
	if err != nil {
		return uuid.Nil, false, err
	}
	if len(existing) > 0 {
		for _, s := range existing {
			ix.Add(s)
		}
		ix.mu.RLock()
		id := ix.byKey[key][0].ID
		ix.mu.RUnlock()
		return id, false, nil
	}

	now := time.Now().UTC()
	s := &types.Student{
		ID:             uuid.New(),
		Name:           display,
		NormalizedName: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := r.students.Create(dbc, []*types.Student{s}); err != nil {
		return uuid.Nil, false, fmt.Errorf("create student: %w", err)
	}
	ix.Add(s)
	r.log.Debug("Created student", "student_id", s.ID)
	return s.ID, true, nil
}

// EnsureClass returns the class m resolved to, creating it under m.Subject when it was not found.
func (r *Resolver) EnsureClass(dbc dbctx.Context, ix *ClassIndex, m ClassMatch) (uuid.UUID, bool, error) {
	if m.Found {
		return m.ClassID, false, nil
	}
	if m.Key == "" {
		return uuid.Nil, false, fmt.Errorf("empty class label")
	}
	if !types.IsSubject(m.Subject) {
		m.Subject = types.SubjectElective
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()

	if again := ix.Match(m.Title, m.Subject); again.Found {
		return again.ClassID, false, nil
	}
	existing, err := r.classes.GetByNormalizedTitles(dbc, []string{m.Key})
	if err != nil {
		return uuid.Nil, false, err
	}
	for _, c := range existing {
		ix.Add(c)
	}
	if again := ix.Match(m.Title, m.Subject); again.Found {
		return again.ClassID, false, nil
	}

	now := time.Now().UTC()
	c := &types.ClassOffering{
		ID:              uuid.New(),
		SubjectCode:     m.Subject,
		Title:           m.Title,
		NormalizedTitle: m.Key,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if _, err := r.classes.Create(dbc, []*types.ClassOffering{c}); err != nil {
		return uuid.Nil, false, fmt.Errorf("create class: %w", err)
	}
	ix.Add(c)
	r.log.Debug("Created class", "class_id", c.ID, "subject", c.SubjectCode, "title", c.Title)
	return c.ID, true, nil
}

// StudentExists checks a caller-provided student id against the store.
func (r *Resolver) StudentExists(dbc dbctx.Context, id uuid.UUID) (*types.Student, error) {
	rows, err := r.students.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}
