package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/snowquery/engine/pkg/models"
	"github.com/snowquery/engine/pkg/store"
)

// ContextBuilder assembles the schema-plus-metadata document given to the
// language model. It merges the raw introspected snapshot with the curated
// overlays and glossary from the store; this document is the only channel
// through which domain knowledge reaches the model, so everything available
// goes in.
type ContextBuilder struct {
	store    store.Store
	cache    *SchemaCache
	resolver *TenantConfigResolver
	logger   *zap.Logger
}

// NewContextBuilder creates a context builder.
func NewContextBuilder(st store.Store, cache *SchemaCache, resolver *TenantConfigResolver, logger *zap.Logger) *ContextBuilder {
	return &ContextBuilder{
		store:    st,
		cache:    cache,
		resolver: resolver,
		logger:   logger.Named("context"),
	}
}

// Build returns the formatted context document for a tenant. Curated
// metadata that fails to load or parse degrades to absent; only schema
// retrieval failures are fatal.
func (b *ContextBuilder) Build(ctx context.Context, tenantID string) (string, error) {
	cfg, err := b.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return "", err
	}

	snapshot, err := b.cache.Get(ctx, tenantID)
	if err != nil {
		return "", err
	}

	tableMeta, err := b.store.ListTableMetadata(ctx, tenantID)
	if err != nil {
		b.logger.Warn("table metadata unavailable, continuing with raw schema",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		tableMeta = nil
	}

	terms, err := b.store.ListBusinessTerms(ctx, tenantID)
	if err != nil {
		b.logger.Warn("business glossary unavailable",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		terms = nil
	}

	metaByTable := make(map[string]*models.TableMetadata, len(tableMeta))
	for _, tm := range tableMeta {
		metaByTable[tm.TableName] = tm
	}

	var doc strings.Builder
	fmt.Fprintf(&doc, "Database: %s\n", cfg.Database)
	fmt.Fprintf(&doc, "Schema: %s\n\n", cfg.DefaultSchema())

	writeGlossary(&doc, terms)

	doc.WriteString("## Available Tables\n\n")
	for i := range snapshot.Tables {
		writeTable(&doc, &snapshot.Tables[i], metaByTable[snapshot.Tables[i].Name])
	}

	return doc.String(), nil
}

func writeGlossary(doc *strings.Builder, terms []*models.BusinessTerm) {
	if len(terms) == 0 {
		return
	}

	doc.WriteString("## Business Glossary\n")
	doc.WriteString("These are domain-specific terms the user may use. Map them to the correct SQL.\n\n")

	for _, term := range terms {
		fmt.Fprintf(doc, "**%s**\n", term.Term)
		if term.Definition != nil {
			fmt.Fprintf(doc, "  Definition: %s\n", *term.Definition)
		}
		if term.SQLMapping != nil {
			fmt.Fprintf(doc, "  SQL: %s\n", *term.SQLMapping)
		}
		if related := term.RelatedTableList(); len(related) > 0 {
			fmt.Fprintf(doc, "  Tables: %s\n", strings.Join(related, ", "))
		}
		doc.WriteString("\n")
	}
}

func writeTable(doc *strings.Builder, table *models.TableSchema, meta *models.TableMetadata) {
	displayName := table.Name
	if meta != nil && meta.DisplayName != nil {
		displayName = *meta.DisplayName
	}

	fmt.Fprintf(doc, "### %s (%s) — %s, ~%s rows\n",
		displayName, table.Name, table.Type, formatRowCount(table.RowCount))

	switch {
	case meta != nil && meta.Description != nil:
		fmt.Fprintf(doc, "**Description:** %s\n", *meta.Description)
	case table.Comment != "":
		fmt.Fprintf(doc, "**Description:** %s\n", table.Comment)
	}

	if meta != nil {
		if meta.GrainDescription != nil {
			fmt.Fprintf(doc, "**Grain:** %s\n", *meta.GrainDescription)
		}
		if meta.DataSource != nil {
			fmt.Fprintf(doc, "**Source:** %s\n", *meta.DataSource)
		}
		if meta.UpdateFrequency != nil {
			fmt.Fprintf(doc, "**Updated:** %s\n", *meta.UpdateFrequency)
		}
		if meta.ImportantNotes != nil {
			fmt.Fprintf(doc, "**Notes:** %s\n", *meta.ImportantNotes)
		}
		if joins := meta.Joins(); len(joins) > 0 {
			doc.WriteString("**Common Joins:**\n")
			for _, j := range joins {
				kind := j.Type
				if kind == "" {
					kind = "JOIN"
				}
				fmt.Fprintf(doc, "  - %s %s ON %s\n", kind, j.Table, j.On)
			}
		}
		if filters := meta.Filters(); len(filters) > 0 {
			fmt.Fprintf(doc, "**Common Filters:** %s\n", strings.Join(filters, " | "))
		}
	}

	doc.WriteString("\n")
	doc.WriteString("| Column | Type | Description | Synonyms | Sample Values |\n")
	doc.WriteString("|--------|------|-------------|----------|---------------|\n")

	for i := range table.Columns {
		col := &table.Columns[i]
		var colMeta *models.ColumnMetadata
		if meta != nil {
			colMeta = meta.ColumnByName(col.Name)
		}
		writeColumnRow(doc, col, colMeta)
	}

	if meta != nil {
		if examples := meta.Examples(); len(examples) > 0 {
			doc.WriteString("\n**Example queries:**\n")
			for _, ex := range examples {
				fmt.Fprintf(doc, "  Q: %q\n", ex.Question)
				fmt.Fprintf(doc, "  SQL: %s\n", ex.SQL)
			}
		}
	}

	doc.WriteString("\n")
}

func writeColumnRow(doc *strings.Builder, col *models.ColumnSchema, meta *models.ColumnMetadata) {
	nullable := "NOT NULL"
	if col.Nullable {
		nullable = "NULL"
	}

	desc := col.Comment
	if meta != nil {
		if meta.Description != nil {
			desc = *meta.Description
		}
		if meta.Unit != nil {
			desc += fmt.Sprintf(" (%s)", *meta.Unit)
		}
		if meta.ComputedLogic != nil {
			desc += fmt.Sprintf(" [Computed: %s]", *meta.ComputedLogic)
		}
		if meta.IsPrimaryKey {
			desc = "PK. " + desc
		}
		if meta.IsForeignKey {
			ref := ""
			if meta.ForeignKeyRef != nil {
				ref = *meta.ForeignKeyRef
			}
			desc = fmt.Sprintf("FK->%s. ", ref) + desc
		}
	}

	var synonyms, samples string
	if meta != nil {
		synonyms = strings.Join(meta.SynonymList(), ", ")

		// Value mappings beat raw sample values: "code=label" pairs tell
		// the model how users will actually phrase filters.
		if mapping := meta.ValueMap(); len(mapping) > 0 {
			pairs := make([]string, 0, len(mapping))
			for k, v := range mapping {
				pairs = append(pairs, fmt.Sprintf("%s=%s", k, v))
			}
			sort.Strings(pairs)
			samples = strings.Join(pairs, ", ")
		} else {
			samples = strings.Join(meta.SampleValueList(), ", ")
		}
	}

	fmt.Fprintf(doc, "| %s | %s %s | %s | %s | %s |\n",
		col.Name, col.Type, nullable, desc, synonyms, samples)
}

// formatRowCount renders a count with thousands separators, matching how
// analysts read table sizes.
func formatRowCount(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var out strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		out.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if out.Len() > 0 {
			out.WriteString(",")
		}
		out.WriteString(s[i : i+3])
	}
	return out.String()
}
