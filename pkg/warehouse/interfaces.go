// Package warehouse manages per-tenant connections to the analytical
// warehouse and introspects its schema.
package warehouse

import (
	"context"
	"database/sql"

	"github.com/snowquery/engine/pkg/models"
)

// Driver abstracts a warehouse backend: opening connections from a tenant
// configuration plus the dialect-specific metadata SQL.
type Driver interface {
	// Open establishes a connection from the tenant configuration using its
	// credential mode (password or signed-key material).
	Open(ctx context.Context, cfg *models.TenantConnectionConfig) (*sql.DB, error)

	// TablesQuery returns the statement listing tables of one schema with
	// name, kind, and comment.
	TablesQuery(database, schema string) (query string, args []any)

	// ColumnsQuery returns the statement listing the ordered columns of one
	// table with name, declared type, nullability, and comment.
	ColumnsQuery(database, schema, table string) (query string, args []any)

	// RowCountQuery returns the statement counting rows of one table.
	RowCountQuery(database, schema, table string) string

	// QuoteIdentifier safely quotes a SQL identifier for this dialect.
	QuoteIdentifier(name string) string
}
