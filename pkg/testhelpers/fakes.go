// Package testhelpers provides shared fixtures for tests: a sqlmock-backed
// warehouse driver and a containerized metadata store.
package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/snowquery/engine/pkg/models"
	"github.com/snowquery/engine/pkg/warehouse"
)

// FakeDriver is a warehouse driver backed by sqlmock. Each Open hands out a
// fresh mock connection whose pings always succeed, so pool liveness checks
// pass without arming expectations.
type FakeDriver struct {
	mu        sync.Mutex
	openCalls int

	// OpenErr, when set, makes every Open fail with this error.
	OpenErr error

	// Expectations arms each new mock connection before it is handed out.
	Expectations func(mock sqlmock.Sqlmock)
}

var _ warehouse.Driver = (*FakeDriver)(nil)

func (d *FakeDriver) Open(ctx context.Context, cfg *models.TenantConnectionConfig) (*sql.DB, error) {
	d.mu.Lock()
	d.openCalls++
	d.mu.Unlock()

	if d.OpenErr != nil {
		return nil, d.OpenErr
	}

	db, mock, err := sqlmock.New()
	if err != nil {
		return nil, err
	}
	if d.Expectations != nil {
		d.Expectations(mock)
	}
	return db, nil
}

// OpenCalls returns how many times Open has been invoked.
func (d *FakeDriver) OpenCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openCalls
}

func (d *FakeDriver) TablesQuery(database, schema string) (string, []any) {
	return fmt.Sprintf("LIST TABLES %s.%s", database, schema), nil
}

func (d *FakeDriver) ColumnsQuery(database, schema, table string) (string, []any) {
	return fmt.Sprintf("LIST COLUMNS %s.%s.%s", database, schema, table), nil
}

func (d *FakeDriver) RowCountQuery(database, schema, table string) string {
	return fmt.Sprintf("COUNT ROWS %s.%s.%s", database, schema, table)
}

func (d *FakeDriver) QuoteIdentifier(name string) string {
	return `"` + name + `"`
}

// TenantConfig returns a connection configuration that passes validation.
func TenantConfig() *models.TenantConnectionConfig {
	return &models.TenantConnectionConfig{
		Account:          "acme.warehouse.example.net",
		Principal:        "engine_svc",
		Password:         "test_password",
		Warehouse:        "COMPUTE_WH",
		Database:         "ANALYTICS",
		Schemas:          []string{"PUBLIC"},
		Role:             "REPORTER",
		MaxRowsPerQuery:  500,
		QueryTimeoutSecs: 30,
	}
}
