package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/snowquery/engine/pkg/apperrors"
	"github.com/snowquery/engine/pkg/models"
)

// columnFetchConcurrency bounds the concurrent column queries per schema.
const columnFetchConcurrency = 4

// Introspector enumerates tables, columns, and approximate row counts
// across the configured schemas of a tenant's warehouse database.
type Introspector struct {
	driver Driver
	logger *zap.Logger
}

// NewIntrospector creates an introspector for the given warehouse driver.
func NewIntrospector(driver Driver, logger *zap.Logger) *Introspector {
	return &Introspector{
		driver: driver,
		logger: logger.Named("introspect"),
	}
}

// Introspect captures a full schema snapshot. Any metadata query failure
// aborts the whole pass; a snapshot is never partially populated. Row count
// queries are the one tolerated failure and default to zero.
func (in *Introspector) Introspect(ctx context.Context, db *sql.DB, database string, schemas []string) (*models.SchemaSnapshot, error) {
	snapshot := &models.SchemaSnapshot{CapturedAt: time.Now().UTC()}

	for _, schema := range schemas {
		tables, err := in.listTables(ctx, db, database, schema)
		if err != nil {
			return nil, &apperrors.IntrospectionError{Schema: schema, Err: err}
		}

		// Column fetches within a schema run concurrently to bound
		// wall-clock time on wide schemas.
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(columnFetchConcurrency)

		for i := range tables {
			table := &tables[i]
			g.Go(func() error {
				columns, err := in.listColumns(gctx, db, database, schema, table.Name)
				if err != nil {
					return fmt.Errorf("table %s: %w", table.Name, err)
				}
				table.Columns = columns
				table.RowCount = in.countRows(gctx, db, database, schema, table.Name)
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, &apperrors.IntrospectionError{Schema: schema, Err: err}
		}

		snapshot.Tables = append(snapshot.Tables, tables...)
	}

	in.logger.Info("schema introspected",
		zap.String("database", database),
		zap.Strings("schemas", schemas),
		zap.Int("tables", len(snapshot.Tables)),
	)

	return snapshot, nil
}

func (in *Introspector) listTables(ctx context.Context, db *sql.DB, database, schema string) ([]models.TableSchema, error) {
	query, args := in.driver.TablesQuery(database, schema)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []models.TableSchema
	for rows.Next() {
		table := models.TableSchema{Schema: schema}
		var comment sql.NullString
		if err := rows.Scan(&table.Name, &table.Type, &comment); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		table.Comment = comment.String
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table rows: %w", err)
	}

	return tables, nil
}

func (in *Introspector) listColumns(ctx context.Context, db *sql.DB, database, schema, table string) ([]models.ColumnSchema, error) {
	query, args := in.driver.ColumnsQuery(database, schema, table)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []models.ColumnSchema
	for rows.Next() {
		var col models.ColumnSchema
		var nullable string
		var comment sql.NullString
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &comment); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		col.Nullable = nullable == "YES"
		col.Comment = comment.String
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}

	return columns, nil
}

// countRows returns the approximate row count, or zero when the count query
// fails (e.g. insufficient privileges on a view's underlying table).
func (in *Introspector) countRows(ctx context.Context, db *sql.DB, database, schema, table string) int64 {
	var count int64
	err := db.QueryRowContext(ctx, in.driver.RowCountQuery(database, schema, table)).Scan(&count)
	if err != nil {
		in.logger.Debug("row count unavailable",
			zap.String("table", table),
			zap.Error(err),
		)
		return 0
	}
	return count
}
