package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/snowquery/engine/pkg/jsonutil"
)

// TableMetadata is the curated overlay for one table: human-authored
// descriptions layered on top of the raw introspected schema. It is edited
// out of band and read-only from the pipeline's perspective.
//
// CommonJoins, CommonFilters, and SampleQueries are stored as opaque
// serialized JSON; use the accessor methods, which degrade to absent on
// malformed content.
type TableMetadata struct {
	ID        uuid.UUID `json:"id"`
	TenantID  string    `json:"tenant_id"`
	TableName string    `json:"table_name"`

	DisplayName      *string `json:"display_name,omitempty"`
	Description      *string `json:"description,omitempty"`
	GrainDescription *string `json:"grain_description,omitempty"` // what one row represents
	DataSource       *string `json:"data_source,omitempty"`
	UpdateFrequency  *string `json:"update_frequency,omitempty"`
	ImportantNotes   *string `json:"important_notes,omitempty"`

	CommonJoins   string `json:"common_joins,omitempty"`
	CommonFilters string `json:"common_filters,omitempty"`
	SampleQueries string `json:"sample_queries,omitempty"`

	Columns []ColumnMetadata `json:"columns,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableJoin is one documented join path from this table.
type TableJoin struct {
	Table string `json:"table"`
	On    string `json:"on"`
	Type  string `json:"type,omitempty"` // JOIN kind, e.g. "LEFT JOIN"; empty means plain JOIN
}

// ExampleQuery is one worked question/SQL pair for a table.
type ExampleQuery struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
}

// Joins parses the common-joins blob. Malformed content yields nil.
func (m *TableMetadata) Joins() []TableJoin {
	var joins []TableJoin
	if !jsonutil.Decode(m.CommonJoins, &joins) {
		return nil
	}
	return joins
}

// Filters parses the common-filters blob. Malformed content yields nil.
func (m *TableMetadata) Filters() []string {
	return jsonutil.StringList(m.CommonFilters)
}

// Examples parses the sample-queries blob. Malformed content yields nil.
func (m *TableMetadata) Examples() []ExampleQuery {
	var examples []ExampleQuery
	if !jsonutil.Decode(m.SampleQueries, &examples) {
		return nil
	}
	return examples
}

// ColumnByName returns the curated overlay for a column, or nil.
func (m *TableMetadata) ColumnByName(name string) *ColumnMetadata {
	for i := range m.Columns {
		if m.Columns[i].ColumnName == name {
			return &m.Columns[i]
		}
	}
	return nil
}
