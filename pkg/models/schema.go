package models

import "time"

// Table type values as reported by INFORMATION_SCHEMA.
const (
	TableKindBase = "BASE TABLE"
	TableKindView = "VIEW"
)

// ColumnSchema is one introspected column, in ordinal order.
type ColumnSchema struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Comment  string `json:"comment"`
}

// TableSchema is one introspected table or view.
// RowCount is approximate and zero when unavailable.
type TableSchema struct {
	Name     string         `json:"name"`
	Schema   string         `json:"schema"`
	Type     string         `json:"type"`
	Comment  string         `json:"comment"`
	RowCount int64          `json:"row_count"`
	Columns  []ColumnSchema `json:"columns"`
}

// SchemaSnapshot is the full introspected table set for a tenant at a point
// in time. A snapshot is either fully introspected or not used at all;
// partial introspection failures abort the refresh.
type SchemaSnapshot struct {
	Tables     []TableSchema `json:"tables"`
	CapturedAt time.Time     `json:"captured_at"`
}

// Age reports how long ago the snapshot was captured.
func (s *SchemaSnapshot) Age() time.Duration {
	return time.Since(s.CapturedAt)
}
