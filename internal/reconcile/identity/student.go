package identity

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/normalization"
)

type Confidence string

const (
	ConfidenceExact Confidence = "exact"
	ConfidenceFuzzy Confidence = "fuzzy"
	ConfidenceNone  Confidence = "none"
)

const (
	DefaultFuzzyThreshold = 2
	DefaultExactThreshold = 9

	lastNamePoints  = 2
	firstNamePoints = 2
	fullMatchPoints = 5
)

type Config struct {
	FuzzyThreshold int
	ExactThreshold int
}

func (c Config) withDefaults() Config {
	if c.FuzzyThreshold <= 0 {
		c.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if c.ExactThreshold <= 0 {
		c.ExactThreshold = DefaultExactThreshold
	}
	if c.ExactThreshold < c.FuzzyThreshold {
		c.ExactThreshold = c.FuzzyThreshold
	}
	return c
}

type Candidate struct {
	ID        uuid.UUID
	Name      string
	Key       string
	CreatedAt time.Time
	tokens    map[string]bool
}

func newCandidate(s *types.Student) Candidate {
	key := s.NormalizedName
	if key == "" {
		key = normalization.StudentKey(s.Name)
	}
	c := Candidate{ID: s.ID, Name: s.Name, Key: key, CreatedAt: s.CreatedAt, tokens: map[string]bool{}}
	for _, tok := range strings.Fields(key) {
		c.tokens[tok] = true
	}
	return c
}

func earlier(a, b Candidate) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

type StudentMatch struct {
	Label       string     `json:"imported_label"`
	Key         string     `json:"key"`
	StudentID   uuid.UUID  `json:"student_id,omitempty"`
	StudentName string     `json:"matched_student_name,omitempty"`
	Score       int        `json:"score"`
	Confidence  Confidence `json:"confidence"`
}

// StudentIndex is the in-memory candidate set for one batch, built from a single bulk fetch.
// Students created during the batch are added so a name is only ever created once.
type StudentIndex struct {
	cfg Config

	mu      sync.RWMutex
	byID    map[uuid.UUID]Candidate
	byKey   map[string][]Candidate
	byToken map[string][]Candidate
}

func NewStudentIndex(students []*types.Student, cfg Config) *StudentIndex {
	ix := &StudentIndex{
		cfg:     cfg.withDefaults(),
		byID:    map[uuid.UUID]Candidate{},
		byKey:   map[string][]Candidate{},
		byToken: map[string][]Candidate{},
	}
	for _, s := range students {
		if s != nil {
			ix.add(newCandidate(s))
		}
	}
	for k := range ix.byKey {
		sortCandidates(ix.byKey[k])
	}
	return ix
}

func sortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool { return earlier(cs[i], cs[j]) })
}

func (ix *StudentIndex) add(c Candidate) {
	if _, ok := ix.byID[c.ID]; ok {
		return
	}
	ix.byID[c.ID] = c
	ix.byKey[c.Key] = append(ix.byKey[c.Key], c)
	for tok := range c.tokens {
		ix.byToken[tok] = append(ix.byToken[tok], c)
	}
}

// Add registers a student created after the index was built.
func (ix *StudentIndex) Add(s *types.Student) {
	if s == nil {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	c := newCandidate(s)
	ix.add(c)
	sortCandidates(ix.byKey[c.Key])
}

func (ix *StudentIndex) Lookup(id uuid.UUID) (Candidate, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	c, ok := ix.byID[id]
	return c, ok
}

// Score rates a candidate against a normalized label key.
func Score(key string, c Candidate) int {
	first, last := normalization.NameParts(key)
	if first == "" {
		return 0
	}
	score := 0
	if c.tokens[last] {
		score += lastNamePoints
	}
	if c.tokens[first] {
		score += firstNamePoints
	}
	if c.Key == key {
		score += fullMatchPoints
	}
	return score
}

// Match resolves a student label. An exact normalized-name hit wins outright; otherwise every
// candidate sharing the first or last token is scored and the best (earliest on ties) kept.
func (ix *StudentIndex) Match(label string) StudentMatch {
	key := normalization.StudentKey(label)
	m := StudentMatch{Label: label, Key: key, Confidence: ConfidenceNone}
	if key == "" {
		return m
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if hits := ix.byKey[key]; len(hits) > 0 {
		best := hits[0]
		m.StudentID, m.StudentName, m.Score = best.ID, best.Name, Score(key, best)
		m.Confidence = ix.classify(m.Score)
		return m
	}

	first, last := normalization.NameParts(key)
	seen := map[uuid.UUID]bool{}
	var best Candidate
	bestScore := -1
	for _, tok := range []string{last, first} {
		for _, c := range ix.byToken[tok] {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			sc := Score(key, c)
			if sc > bestScore || (sc == bestScore && earlier(c, best)) {
				best, bestScore = c, sc
			}
		}
	}
	if bestScore < ix.cfg.FuzzyThreshold {
		return m
	}
	m.StudentID, m.StudentName, m.Score = best.ID, best.Name, bestScore
	m.Confidence = ix.classify(bestScore)
	return m
}

func (ix *StudentIndex) classify(score int) Confidence {
	switch {
	case score >= ix.cfg.ExactThreshold:
		return ConfidenceExact
	case score >= ix.cfg.FuzzyThreshold:
		return ConfidenceFuzzy
	default:
		return ConfidenceNone
	}
}
