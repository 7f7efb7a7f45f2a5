package normalization

import (
	"regexp"
	"strings"
)

func ParseInputString(input string) string {
	normalized := strings.ToLower(strings.TrimSpace(input))
	return normalized
}

func ParseInputStringPtr(input *string) *string {
	if input == nil {
		return nil
	}
	normalized := strings.ToLower(strings.TrimSpace(*input))
	return &normalized
}

// CollapseSpace trims s and folds every internal whitespace run to a single space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Title is the display/exact-match form of a class or curriculum title.
func Title(s string) string {
	return CollapseSpace(s)
}

// TitleKey is the case-insensitive grouping key for titles.
func TitleKey(s string) string {
	return strings.ToLower(CollapseSpace(s))
}

// StudentName turns "Last, First Middle" into "First Middle Last". Labels without a comma are
// only whitespace-collapsed.
func StudentName(raw string) string {
	s := CollapseSpace(raw)
	if s == "" {
		return ""
	}
	idx := strings.Index(s, ",")
	if idx < 0 {
		return s
	}
	last := CollapseSpace(s[:idx])
	first := CollapseSpace(strings.ReplaceAll(s[idx+1:], ",", " "))
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}

// StudentKey is the lowercased comparison key for a student label.
func StudentKey(raw string) string {
	return strings.ToLower(StudentName(raw))
}

// NameParts splits a student key into its first and last tokens. A single-token name returns the
// same token for both.
func NameParts(key string) (first, last string) {
	tokens := strings.Fields(key)
	if len(tokens) == 0 {
		return "", ""
	}
	return tokens[0], tokens[len(tokens)-1]
}

var structuredCodeRE = regexp.MustCompile(`^\s*(\d+\.\d+\.\d+)`)

// StructuredCode extracts the leading D.D.D activity code, or "" when the label has none.
func StructuredCode(label string) string {
	m := structuredCodeRE.FindStringSubmatch(label)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
