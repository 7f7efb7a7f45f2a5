package hierarchy

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/normalization"
)

// File is the on-disk shape of a hierarchy seed:
//
//	subjects:
//	  - code: science
//	    classes:
//	      - title: Biology A
//	        curriculum:
//	          - "1.1.1 Cell Theory"
//	          - title: "1.1.2 Organelles"
//	            points: 20
type File struct {
	Subjects []SubjectEntry `yaml:"subjects" validate:"dive"`
}

type SubjectEntry struct {
	Code    string       `yaml:"code" validate:"required"`
	Classes []ClassEntry `yaml:"classes" validate:"dive"`
}

type ClassEntry struct {
	Title      string      `yaml:"title" validate:"required"`
	Curriculum []ItemEntry `yaml:"curriculum,omitempty" validate:"dive"`
}

type ItemEntry struct {
	Title  string  `yaml:"title" validate:"required"`
	Points float64 `yaml:"points" validate:"gte=0"`
}

// UnmarshalYAML accepts a bare string as shorthand for {title: ...}.
func (i *ItemEntry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		i.Title = value.Value
		return nil
	}
	type plain ItemEntry
	return value.Decode((*plain)(i))
}

type ClassSpec struct {
	Subject    string
	Title      string
	Curriculum []ItemEntry
}

// Hierarchy is the parsed seed: subject → classes → optional canonical curriculum.
type Hierarchy struct {
	classes        []ClassSpec
	subjectByTitle map[string]string
}

var validate = validator.New()

func Load(path string) (*Hierarchy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hierarchy %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Hierarchy, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse hierarchy: %w", err)
	}
	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid hierarchy: %w", err)
	}
	h := &Hierarchy{subjectByTitle: map[string]string{}}
	ambiguous := map[string]bool{}
	for _, s := range f.Subjects {
		code, ok := NormalizeSubject(s.Code)
		if !ok {
			return nil, fmt.Errorf("invalid hierarchy: unknown subject %q", s.Code)
		}
		for _, c := range s.Classes {
			spec := ClassSpec{Subject: code, Title: normalization.Title(c.Title)}
			for _, it := range c.Curriculum {
				spec.Curriculum = append(spec.Curriculum, ItemEntry{Title: normalization.Title(it.Title), Points: it.Points})
			}
			h.classes = append(h.classes, spec)

			key := normalization.TitleKey(c.Title)
			if prev, seen := h.subjectByTitle[key]; seen && prev != code {
				ambiguous[key] = true
			}
			h.subjectByTitle[key] = code
		}
	}
	for key := range ambiguous {
		delete(h.subjectByTitle, key)
	}
	return h, nil
}

// Classes returns every declared class in file order.
func (h *Hierarchy) Classes() []ClassSpec {
	if h == nil {
		return nil
	}
	return append([]ClassSpec(nil), h.classes...)
}

// Canonical returns the classes that declare a curriculum list.
func (h *Hierarchy) Canonical() []ClassSpec {
	out := []ClassSpec{}
	for _, c := range h.Classes() {
		if len(c.Curriculum) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// SubjectFor returns the subject a title is declared under, if exactly one subject declares it.
func (h *Hierarchy) SubjectFor(title string) (string, bool) {
	if h == nil {
		return "", false
	}
	code, ok := h.subjectByTitle[normalization.TitleKey(title)]
	return code, ok
}

// NormalizeSubject accepts a subject code or display name ("Social Studies", "social-studies").
func NormalizeSubject(raw string) (string, bool) {
	s := strings.ToLower(normalization.CollapseSpace(raw))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	if types.IsSubject(s) {
		return s, true
	}
	return "", false
}

var subjectKeywords = map[string][]string{
	types.SubjectMath:          {"math", "algebra", "geometry", "calculus", "trigonometry", "statistics", "precalculus"},
	types.SubjectScience:       {"science", "biology", "chemistry", "physics", "earth", "environmental", "anatomy"},
	types.SubjectEnglish:       {"english", "literature", "writing", "reading", "composition", "ela"},
	types.SubjectSocialStudies: {"history", "civics", "government", "geography", "economics", "social"},
	types.SubjectWorldLanguage: {"spanish", "french", "german", "latin", "chinese", "mandarin", "japanese", "italian"},
	types.SubjectArts:          {"art", "arts", "music", "band", "choir", "orchestra", "drama", "theater", "theatre", "ceramics"},
}

// keywordSubjects is subjectKeywords inverted, with subjects visited in a fixed order so a
// title containing keywords of two subjects always resolves the same way.
var keywordSubjects = func() map[string]string {
	subjects := make([]string, 0, len(subjectKeywords))
	for s := range subjectKeywords {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)
	out := map[string]string{}
	for _, s := range subjects {
		for _, kw := range subjectKeywords[s] {
			if _, taken := out[kw]; !taken {
				out[kw] = s
			}
		}
	}
	return out
}()

// InferSubject picks a subject for a class title: the seed hierarchy first, then the keyword
// table, then elective.
func InferSubject(title string, h *Hierarchy) string {
	if code, ok := h.SubjectFor(title); ok {
		return code
	}
	for _, tok := range strings.FieldsFunc(normalization.TitleKey(title), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}) {
		if s, ok := keywordSubjects[tok]; ok {
			return s
		}
	}
	return types.SubjectElective
}
