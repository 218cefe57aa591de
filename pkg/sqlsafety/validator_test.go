package sqlsafety

import (
	"errors"
	"strings"
	"testing"

	"github.com/snowquery/engine/pkg/apperrors"
)

func TestValidate_AllowsReadOnlyQueries(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "simple select",
			input: "SELECT 1",
		},
		{
			name:  "select with trailing semicolon",
			input: "SELECT * FROM members;",
		},
		{
			name:  "lowercase select",
			input: "select id, name from members where id = 1",
		},
		{
			name:  "cte query",
			input: "WITH recent AS (SELECT * FROM orders WHERE placed_at > '2026-01-01') SELECT COUNT(*) FROM recent",
		},
		{
			name:  "column name containing a blocked word as substring",
			input: "SELECT description FROM products",
		},
		{
			name:  "updated_at column",
			input: "SELECT updated_at FROM members",
		},
		{
			name:  "semicolon inside string literal",
			input: "SELECT * FROM members WHERE note = 'a;b'",
		},
		{
			name:  "escaped quote inside string literal",
			input: "SELECT * FROM members WHERE name = 'O''Brien'",
		},
		{
			name:  "multiline query",
			input: "SELECT id,\n       name\nFROM members\nWHERE active = 1;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(tt.input); err != nil {
				t.Errorf("Validate(%q) = %v, want nil", tt.input, err)
			}
		})
	}
}

func TestValidate_RejectsUnsafeQueries(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		violation string
	}{
		{
			name:      "empty statement",
			input:     "   ",
			violation: "empty statement",
		},
		{
			name:      "bare delete",
			input:     "DELETE FROM members",
			violation: "only SELECT",
		},
		{
			name:      "drop table",
			input:     "DROP TABLE members",
			violation: "only SELECT",
		},
		{
			name:      "select containing drop keyword",
			input:     "SELECT * FROM members; DROP TABLE members",
			violation: "DROP",
		},
		{
			name:      "stacked select then delete",
			input:     "select * from members; DELETE FROM members",
			violation: "DELETE",
		},
		{
			name:      "select with embedded insert",
			input:     "SELECT * FROM members WHERE id IN (INSERT INTO t VALUES (1))",
			violation: "INSERT",
		},
		{
			name:      "two select statements",
			input:     "SELECT 1; SELECT 2",
			violation: "multiple SQL statements",
		},
		{
			name:      "exec procedure",
			input:     "EXEC sp_who",
			violation: "only SELECT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.input)
			if err == nil {
				t.Fatalf("Validate(%q) = nil, want error", tt.input)
			}

			var unsafeErr *apperrors.UnsafeQueryError
			if !errors.As(err, &unsafeErr) {
				t.Fatalf("Validate(%q) returned %T, want *apperrors.UnsafeQueryError", tt.input, err)
			}
			if !strings.Contains(unsafeErr.Violation, tt.violation) {
				t.Errorf("violation %q does not mention %q", unsafeErr.Violation, tt.violation)
			}
		})
	}
}

func TestStringLiterals(t *testing.T) {
	got := stringLiterals("SELECT * FROM t WHERE a = 'one' AND b = 'it''s'")
	if len(got) != 2 {
		t.Fatalf("expected 2 literals, got %d: %v", len(got), got)
	}
	if got[0] != "one" {
		t.Errorf("expected first literal 'one', got %q", got[0])
	}
	if got[1] != "it's" {
		t.Errorf("expected second literal \"it's\", got %q", got[1])
	}
}
