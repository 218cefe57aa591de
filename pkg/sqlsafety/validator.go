// Package sqlsafety statically screens LLM-generated SQL before execution.
//
// The screen is a conservative textual filter, not a parser: it requires a
// single statement starting with SELECT or WITH and rejects any text
// containing a write/DDL keyword as a whole word. It can over-reject a
// legitimate SELECT that references an identifier containing a blocked
// keyword outside quotes; AST-based validation would remove that limitation.
package sqlsafety

import (
	"fmt"
	"regexp"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/snowquery/engine/pkg/apperrors"
)

// forbiddenKeywords matches any write/DDL keyword as a whole word,
// case-insensitive, anywhere in the raw statement text.
var forbiddenKeywords = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|EXECUTE|EXEC|GRANT|REVOKE)\b`)

// Validate rejects anything that is not a single read-only statement.
// Returns *apperrors.UnsafeQueryError naming the violation, or nil.
func Validate(sqlQuery string) error {
	trimmed := strings.TrimSpace(sqlQuery)
	if trimmed == "" {
		return &apperrors.UnsafeQueryError{Violation: "empty statement"}
	}

	normalized := strings.ToUpper(trimmed)
	if !strings.HasPrefix(normalized, "SELECT") && !strings.HasPrefix(normalized, "WITH") {
		return &apperrors.UnsafeQueryError{Violation: "only SELECT queries are allowed"}
	}

	if match := forbiddenKeywords.FindString(sqlQuery); match != "" {
		return &apperrors.UnsafeQueryError{
			Violation: fmt.Sprintf("query contains forbidden keyword: %s", strings.ToUpper(match)),
		}
	}

	if hasSemicolonOutsideStrings(stripTrailingSemicolon(trimmed)) {
		return &apperrors.UnsafeQueryError{Violation: "multiple SQL statements are not allowed"}
	}

	if lit := injectionLiteral(trimmed); lit != "" {
		return &apperrors.UnsafeQueryError{
			Violation: fmt.Sprintf("string literal matches SQL injection pattern: %q", lit),
		}
	}

	return nil
}

// hasSemicolonOutsideStrings returns true if the SQL contains any semicolon
// outside of string literals or quoted identifiers.
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	prevChar := rune(0)

	for _, char := range sqlQuery {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			// Handle both backslash escape (\') and SQL standard escape ('').
			// For a doubled quote this exits and immediately re-enters on the
			// next quote, which correctly keeps us inside the string.
			if char == '\'' && prevChar != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' && prevChar != '\\' {
				state = stateNormal
			}
		}
		prevChar = char
	}

	return false
}

// stripTrailingSemicolon removes a trailing semicolon and surrounding whitespace.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimRight(strings.TrimSuffix(sqlQuery, ";"), " \t\n\r")
	}
	return sqlQuery
}

// injectionLiteral runs libinjection over each single-quoted string literal
// and returns the first literal that fingerprints as SQL injection. The
// keyword filter already blocks direct write statements; this catches
// comment-trick payloads smuggled inside literals.
func injectionLiteral(sqlQuery string) string {
	for _, lit := range stringLiterals(sqlQuery) {
		if isSQLi, _ := libinjection.IsSQLi(lit); isSQLi {
			return lit
		}
	}
	return ""
}

// stringLiterals extracts the contents of single-quoted literals,
// honoring the SQL doubled-quote escape.
func stringLiterals(sqlQuery string) []string {
	var literals []string
	var current strings.Builder
	inString := false

	runes := []rune(sqlQuery)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if !inString {
			if c == '\'' {
				inString = true
				current.Reset()
			}
			continue
		}
		if c == '\'' {
			if i+1 < len(runes) && runes[i+1] == '\'' {
				current.WriteRune('\'')
				i++
				continue
			}
			inString = false
			if current.Len() > 0 {
				literals = append(literals, current.String())
			}
			continue
		}
		current.WriteRune(c)
	}

	return literals
}
