package models

import (
	"time"

	"github.com/google/uuid"
)

// QueryRecord is one query-log entry: every terminal pipeline transition
// produces exactly one. Persistence is best-effort and never blocks or
// fails the request it describes.
type QueryRecord struct {
	ID       uuid.UUID `json:"id"`
	TenantID string    `json:"tenant_id"`
	UserID   *string   `json:"user_id,omitempty"` // absent in unauthenticated mode

	Question    string  `json:"question"`
	SQL         *string `json:"sql,omitempty"`
	Explanation *string `json:"explanation,omitempty"`
	Success     bool    `json:"success"`
	Error       *string `json:"error,omitempty"`

	RowCount        int    `json:"row_count"`
	ExecutionTimeMs *int64 `json:"execution_time_ms,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
