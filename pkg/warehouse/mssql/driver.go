// Package mssql implements the warehouse driver for SQL Server and
// Azure SQL databases.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support

	"github.com/snowquery/engine/pkg/models"
	"github.com/snowquery/engine/pkg/warehouse"
)

const defaultPort = "1433"

// connectionTimeoutSecs applies to the initial TCP/TLS handshake, not to
// individual queries.
const connectionTimeoutSecs = 30

// Driver opens SQL Server connections and renders the catalog queries the
// introspector runs. Zero value is ready to use.
type Driver struct{}

// New returns a SQL Server warehouse driver.
func New() *Driver {
	return &Driver{}
}

// Ensure Driver satisfies the warehouse driver contract at compile time.
var _ warehouse.Driver = (*Driver)(nil)

// Open establishes a connection pool for the tenant's database. Password
// credentials use SQL authentication; private-key credentials authenticate
// as an Azure AD service principal with the key as the client secret.
func (d *Driver) Open(ctx context.Context, cfg *models.TenantConnectionConfig) (*sql.DB, error) {
	host, port := splitHostPort(cfg.Account)

	query := url.Values{}
	query.Add("database", cfg.Database)
	query.Add("encrypt", "true")
	query.Add("connection timeout", fmt.Sprintf("%d", connectionTimeoutSecs))
	if cfg.Warehouse != "" {
		query.Add("app name", cfg.Warehouse)
	}

	var connStr, driverName string
	if cfg.Password != "" {
		driverName = "sqlserver"
		connStr = fmt.Sprintf("sqlserver://%s:%s@%s:%s?%s",
			url.QueryEscape(cfg.Principal),
			url.QueryEscape(cfg.Password),
			host,
			port,
			query.Encode(),
		)
	} else {
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		query.Add("user id", cfg.Principal)
		query.Add("password", cfg.PrivateKey)
		if cfg.Role != "" {
			query.Add("tenant id", cfg.Role)
		}

		driverName = "azuresql"
		connStr = fmt.Sprintf("sqlserver://%s:%s?%s",
			host,
			port,
			query.Encode(),
		)
	}

	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", driverName, err)
	}

	return db, nil
}

func splitHostPort(account string) (host, port string) {
	host, port, err := net.SplitHostPort(account)
	if err != nil {
		return account, defaultPort
	}
	return host, port
}

// TablesQuery returns the catalog query listing base tables and views in a
// schema, with their MS_Description comments when present. Result columns:
// name, type, comment.
func (d *Driver) TablesQuery(database, schema string) (string, []any) {
	query := `
	SET NOCOUNT ON;
	SELECT
	    t.TABLE_NAME,
	    CASE WHEN t.TABLE_TYPE = 'VIEW' THEN 'VIEW' ELSE 'BASE TABLE' END AS table_type,
	    CAST(ep.value AS nvarchar(max)) AS table_comment
	FROM INFORMATION_SCHEMA.TABLES t
	LEFT JOIN sys.extended_properties ep
	    ON ep.major_id = OBJECT_ID(QUOTENAME(t.TABLE_SCHEMA) + N'.' + QUOTENAME(t.TABLE_NAME))
	   AND ep.minor_id = 0
	   AND ep.name = 'MS_Description'
	WHERE t.TABLE_CATALOG = @database
	  AND t.TABLE_SCHEMA = @schema
	ORDER BY t.TABLE_NAME
	`
	return query, []any{
		sql.Named("database", database),
		sql.Named("schema", schema),
	}
}

// ColumnsQuery returns the catalog query listing columns of a table in
// ordinal order. Result columns: name, type, nullable (YES/NO), comment.
func (d *Driver) ColumnsQuery(database, schema, table string) (string, []any) {
	query := `
	SET NOCOUNT ON;
	SELECT
	    c.COLUMN_NAME,
	    c.DATA_TYPE,
	    c.IS_NULLABLE,
	    CAST(ep.value AS nvarchar(max)) AS column_comment
	FROM INFORMATION_SCHEMA.COLUMNS c
	LEFT JOIN sys.extended_properties ep
	    ON ep.major_id = OBJECT_ID(QUOTENAME(c.TABLE_SCHEMA) + N'.' + QUOTENAME(c.TABLE_NAME))
	   AND ep.minor_id = c.ORDINAL_POSITION
	   AND ep.name = 'MS_Description'
	WHERE c.TABLE_CATALOG = @database
	  AND c.TABLE_SCHEMA = @schema
	  AND c.TABLE_NAME = @table
	ORDER BY c.ORDINAL_POSITION
	`
	return query, []any{
		sql.Named("database", database),
		sql.Named("schema", schema),
		sql.Named("table", table),
	}
}

// RowCountQuery returns a COUNT_BIG query for the table. Identifiers are
// bracket-quoted because table names cannot be bound as parameters.
func (d *Driver) RowCountQuery(database, schema, table string) string {
	return fmt.Sprintf("SELECT COUNT_BIG(*) FROM %s.%s.%s",
		d.QuoteIdentifier(database),
		d.QuoteIdentifier(schema),
		d.QuoteIdentifier(table),
	)
}

// QuoteIdentifier wraps an identifier in brackets, escaping closing brackets.
func (d *Driver) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
