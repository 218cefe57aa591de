package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/snowquery/engine/pkg/jsonutil"
)

// ColumnMetadata is the curated overlay for one column.
//
// Synonyms, SampleValues, and ValueMapping are stored as opaque serialized
// JSON and parsed defensively: a malformed value degrades to absent, never
// to a failed request.
type ColumnMetadata struct {
	ID         uuid.UUID `json:"id"`
	TenantID   string    `json:"tenant_id"`
	TableName  string    `json:"table_name"`
	ColumnName string    `json:"column_name"`

	Description   *string `json:"description,omitempty"`
	Unit          *string `json:"unit,omitempty"`
	ComputedLogic *string `json:"computed_logic,omitempty"`

	Synonyms     string `json:"synonyms,omitempty"`
	SampleValues string `json:"sample_values,omitempty"`
	ValueMapping string `json:"value_mapping,omitempty"`

	IsPrimaryKey  bool    `json:"is_primary_key"`
	IsForeignKey  bool    `json:"is_foreign_key"`
	ForeignKeyRef *string `json:"foreign_key_ref,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// SynonymList parses the synonyms blob. Malformed content yields nil.
func (m *ColumnMetadata) SynonymList() []string {
	return jsonutil.StringList(m.Synonyms)
}

// SampleValueList parses the sample-values blob. Malformed content yields nil.
func (m *ColumnMetadata) SampleValueList() []string {
	return jsonutil.StringList(m.SampleValues)
}

// ValueMap parses the value-code-to-label blob. Malformed content yields nil.
func (m *ColumnMetadata) ValueMap() map[string]string {
	return jsonutil.StringMap(m.ValueMapping)
}

// BusinessTerm is one curated glossary entry mapping a domain term to its
// definition, SQL expression, and related tables.
type BusinessTerm struct {
	ID       uuid.UUID `json:"id"`
	TenantID string    `json:"tenant_id"`

	Term       string  `json:"term"`
	Definition *string `json:"definition,omitempty"`
	SQLMapping *string `json:"sql_mapping,omitempty"`

	RelatedTables string `json:"related_tables,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// RelatedTableList parses the related-tables blob. Malformed content yields nil.
func (t *BusinessTerm) RelatedTableList() []string {
	return jsonutil.StringList(t.RelatedTables)
}
