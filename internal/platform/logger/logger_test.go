package logger

import (
	"strings"
	"testing"
)

func TestScrubberValue(t *testing.T) {
	s := scrubber{enabled: true, salt: "pepper"}

	if got := s.value("db_dsn", "postgres://u:p@h/db"); got != "[REDACTED]" {
		t.Fatalf("dsn not redacted: %v", got)
	}
	a := s.value("student_label", "Doe, Jane")
	b := s.value("matched_student_name", "Doe, Jane")
	if a != b {
		t.Fatalf("same name should pseudonymize identically: %v vs %v", a, b)
	}
	if str, _ := a.(string); !strings.HasPrefix(str, "hash:") || strings.Contains(str, "Jane") {
		t.Fatalf("unexpected pseudonym %v", a)
	}
	if got := s.value("pass", "orphan-purge"); got != "orphan-purge" {
		t.Fatalf("plain field changed: %v", got)
	}

	nested := s.value("counts", map[string]any{"student_id": "abc", "deleted": 3}).(map[string]any)
	if nested["deleted"] != 3 || nested["student_id"] == "abc" {
		t.Fatalf("nested map not scrubbed: %v", nested)
	}
}

func TestScrubDisabledPassesThrough(t *testing.T) {
	kv := []any{"student_id", "abc"}
	if got := (scrubber{}).value("x", "y"); got != "y" {
		t.Fatalf("unexpected %v", got)
	}
	if actionFor("Student_ID") != pseudonymize || actionFor("") != keep {
		t.Fatalf("action lookup should be case-insensitive")
	}
	if kv[1] != "abc" {
		t.Fatalf("input slice mutated")
	}
}
