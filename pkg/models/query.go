package models

// TranslationResult is the structured output of one translation attempt.
// On a successful parse exactly one of SQL / Error is set; Assumptions is
// always non-nil. Translation failure is represented in-band via Error
// rather than as a Go error.
type TranslationResult struct {
	SQL         *string  `json:"sql"`
	Explanation *string  `json:"explanation"`
	Assumptions []string `json:"assumptions"`
	Error       *string  `json:"error"`
}

// QueryResult is the serialized result set of one executed statement.
// Every cell is a JSON-safe primitive: string, number, boolean, or nil.
// Dates are pre-serialized to ISO-8601 strings and binary to hex.
type QueryResult struct {
	Columns   []string         `json:"columns"`
	Data      []map[string]any `json:"data"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`
}

// QueryResponse is the uniform response envelope of the pipeline. Every
// terminal state of the pipeline resolves to this shape; at least one of
// SQL / Error is always present.
type QueryResponse struct {
	Question    string   `json:"question"`
	SQL         *string  `json:"sql"`
	Explanation *string  `json:"explanation"`
	Assumptions []string `json:"assumptions"`
	Error       *string  `json:"error,omitempty"`

	Columns   []string         `json:"columns"`
	Data      []map[string]any `json:"data"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`

	ExecutionTimeMs *int64 `json:"execution_time_ms,omitempty"`
}

// Conversation turn roles.
const (
	TurnRoleUser      = "user"
	TurnRoleAssistant = "assistant"
)

// ConversationTurn is one prior exchange supplied by the caller. The
// pipeline reads a bounded window of these and never mutates them. A user
// turn carries Text; an assistant turn carries the prior Response.
type ConversationTurn struct {
	Role     string         `json:"role"`
	Text     string         `json:"text,omitempty"`
	Response *QueryResponse `json:"response,omitempty"`
}
