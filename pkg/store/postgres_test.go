package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowquery/engine/pkg/apperrors"
	"github.com/snowquery/engine/pkg/models"
	"github.com/snowquery/engine/pkg/testhelpers"
)

// seedPostgresTenant inserts a tenant row directly; the engine itself never
// writes tenants, provisioning happens out of band.
func seedPostgresTenant(t *testing.T, ts *testhelpers.TestStore, tenantID string) {
	t.Helper()

	_, err := ts.Store.Pool().Exec(context.Background(), `
		INSERT INTO engine_tenants (
			id, name, is_active, daily_query_limit,
			account, principal, password, database_name, schemas,
			max_rows_per_query, query_timeout_secs
		) VALUES ($1, $2, true, 100, 'db.example.net', 'engine_svc', 'secret',
		          'ANALYTICS', ARRAY['PUBLIC', 'REPORTING'], 500, 30)
		ON CONFLICT (id) DO NOTHING`,
		tenantID, "Tenant "+tenantID)
	require.NoError(t, err)
}

func TestPostgresStore_GetTenant(t *testing.T) {
	ts := testhelpers.GetTestStore(t)
	ctx := context.Background()

	_, err := ts.Store.GetTenant(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrTenantNotFound)

	seedPostgresTenant(t, ts, "acme")

	tenant, err := ts.Store.GetTenant(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", tenant.ID)
	assert.True(t, tenant.IsActive)
	assert.Equal(t, 100, tenant.DailyQueryLimit)
	assert.Equal(t, "db.example.net", tenant.Connection.Account)
	assert.Equal(t, "secret", tenant.Connection.Password)
	assert.Equal(t, "ANALYTICS", tenant.Connection.Database)
	assert.Equal(t, []string{"PUBLIC", "REPORTING"}, tenant.Connection.Schemas)
	assert.Equal(t, 500, tenant.Connection.MaxRowsPerQuery)
	assert.NoError(t, tenant.Connection.Validate())
}

func TestPostgresStore_SchemaCacheRoundTrip(t *testing.T) {
	ts := testhelpers.GetTestStore(t)
	ctx := context.Background()
	seedPostgresTenant(t, ts, "schema-tenant")

	snapshot, err := ts.Store.GetCachedSchema(ctx, "schema-tenant")
	require.NoError(t, err)
	assert.Nil(t, snapshot)

	saved := &models.SchemaSnapshot{
		Tables: []models.TableSchema{
			{
				Name:     "MEMBERS",
				Schema:   "PUBLIC",
				Type:     models.TableKindBase,
				RowCount: 42,
				Columns:  []models.ColumnSchema{{Name: "ID", Type: "int"}},
			},
		},
		CapturedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, ts.Store.SaveSchema(ctx, "schema-tenant", saved))

	snapshot, err = ts.Store.GetCachedSchema(ctx, "schema-tenant")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	require.Len(t, snapshot.Tables, 1)
	assert.Equal(t, int64(42), snapshot.Tables[0].RowCount)
	assert.WithinDuration(t, saved.CapturedAt, snapshot.CapturedAt, time.Second)

	// Upsert replaces the previous snapshot.
	saved.Tables = nil
	saved.CapturedAt = time.Now().UTC()
	require.NoError(t, ts.Store.SaveSchema(ctx, "schema-tenant", saved))

	snapshot, err = ts.Store.GetCachedSchema(ctx, "schema-tenant")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Empty(t, snapshot.Tables)
}

func TestPostgresStore_CorruptSnapshotIsAMiss(t *testing.T) {
	ts := testhelpers.GetTestStore(t)
	ctx := context.Background()
	seedPostgresTenant(t, ts, "corrupt-tenant")

	_, err := ts.Store.Pool().Exec(ctx, `
		INSERT INTO engine_schema_cache (tenant_id, snapshot, captured_at)
		VALUES ($1, '"not a snapshot"'::jsonb, NOW())
		ON CONFLICT (tenant_id) DO UPDATE SET snapshot = EXCLUDED.snapshot`,
		"corrupt-tenant")
	require.NoError(t, err)

	snapshot, err := ts.Store.GetCachedSchema(ctx, "corrupt-tenant")
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}

func TestPostgresStore_TableMetadataWithColumns(t *testing.T) {
	ts := testhelpers.GetTestStore(t)
	ctx := context.Background()
	seedPostgresTenant(t, ts, "meta-tenant")

	_, err := ts.Store.Pool().Exec(ctx, `
		INSERT INTO engine_table_metadata (tenant_id, table_name, description, common_joins)
		VALUES ($1, 'MEMBERS', 'One row per member', '[{"table": "CLAIMS", "on": "x = y"}]')
		ON CONFLICT (tenant_id, table_name) DO NOTHING`, "meta-tenant")
	require.NoError(t, err)

	_, err = ts.Store.Pool().Exec(ctx, `
		INSERT INTO engine_column_metadata (tenant_id, table_name, column_name, description, is_primary_key, synonyms)
		VALUES ($1, 'MEMBERS', 'ID', 'Member key', true, '["member id"]'),
		       ($1, 'ORPHANED', 'X', 'No table overlay', false, NULL)
		ON CONFLICT (tenant_id, table_name, column_name) DO NOTHING`, "meta-tenant")
	require.NoError(t, err)

	tables, err := ts.Store.ListTableMetadata(ctx, "meta-tenant")
	require.NoError(t, err)
	require.Len(t, tables, 1)

	members := tables[0]
	assert.Equal(t, "MEMBERS", members.TableName)
	require.NotNil(t, members.Description)
	assert.Len(t, members.Joins(), 1)
	require.Len(t, members.Columns, 1)
	assert.True(t, members.Columns[0].IsPrimaryKey)
	assert.Equal(t, []string{"member id"}, members.Columns[0].SynonymList())
}

func TestPostgresStore_BusinessTerms(t *testing.T) {
	ts := testhelpers.GetTestStore(t)
	ctx := context.Background()
	seedPostgresTenant(t, ts, "terms-tenant")

	_, err := ts.Store.Pool().Exec(ctx, `
		INSERT INTO engine_business_terms (tenant_id, term, definition, sql_mapping, related_tables)
		VALUES ($1, 'paid claim', 'Claim with status P', 'STATUS = ''P''', '["CLAIMS"]')
		ON CONFLICT (tenant_id, term) DO NOTHING`, "terms-tenant")
	require.NoError(t, err)

	terms, err := ts.Store.ListBusinessTerms(ctx, "terms-tenant")
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "paid claim", terms[0].Term)
	assert.Equal(t, []string{"CLAIMS"}, terms[0].RelatedTableList())
}

func TestPostgresStore_QueryLogAndQuotaCount(t *testing.T) {
	ts := testhelpers.GetTestStore(t)
	ctx := context.Background()
	seedPostgresTenant(t, ts, "log-tenant")

	sqlText := "SELECT 1"
	elapsed := int64(12)
	require.NoError(t, ts.Store.RecordQuery(ctx, &models.QueryRecord{
		TenantID:        "log-tenant",
		Question:        "one?",
		SQL:             &sqlText,
		Success:         true,
		RowCount:        1,
		ExecutionTimeMs: &elapsed,
	}))

	errText := "unsafe query rejected: only SELECT queries are allowed"
	require.NoError(t, ts.Store.RecordQuery(ctx, &models.QueryRecord{
		TenantID:  "log-tenant",
		Question:  "drop it",
		Success:   false,
		Error:     &errText,
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
	}))

	count, err := ts.Store.CountQueriesSince(ctx, "log-tenant", time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = ts.Store.CountQueriesSince(ctx, "log-tenant", time.Now().UTC().Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
