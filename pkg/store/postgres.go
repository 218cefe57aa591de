package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/snowquery/engine/pkg/apperrors"
	"github.com/snowquery/engine/pkg/models"
	"github.com/snowquery/engine/pkg/retry"
)

// PostgresConfig holds connection settings for the metadata database.
type PostgresConfig struct {
	URL             string
	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// PostgresStore is the production Store backed by a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to the metadata database and verifies it with a
// ping.
func NewPostgresStore(ctx context.Context, cfg *PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConnections
	if poolConfig.MaxConns == 0 {
		poolConfig.MaxConns = 10
	}

	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	if poolConfig.MaxConnLifetime == 0 {
		poolConfig.MaxConnLifetime = time.Hour
	}

	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	if poolConfig.MaxConnIdleTime == 0 {
		poolConfig.MaxConnIdleTime = 30 * time.Minute
	}

	// The metadata database may still be starting when the engine boots.
	pool, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*pgxpool.Pool, error) {
		p, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	return &PostgresStore{
		pool:   pool,
		logger: logger.Named("store"),
	}, nil
}

// Pool exposes the underlying pgx pool for migrations wiring.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	query := `
		SELECT id, name, is_active, daily_query_limit,
		       account, principal, password, private_key, warehouse, database_name,
		       schemas, role, max_rows_per_query, query_timeout_secs,
		       schema_cached_at, created_at, updated_at
		FROM engine_tenants
		WHERE id = $1`

	var t models.Tenant
	err := s.pool.QueryRow(ctx, query, tenantID).Scan(
		&t.ID, &t.Name, &t.IsActive, &t.DailyQueryLimit,
		&t.Connection.Account, &t.Connection.Principal,
		&t.Connection.Password, &t.Connection.PrivateKey,
		&t.Connection.Warehouse, &t.Connection.Database,
		&t.Connection.Schemas, &t.Connection.Role,
		&t.Connection.MaxRowsPerQuery, &t.Connection.QueryTimeoutSecs,
		&t.SchemaCachedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return &t, nil
}

func (s *PostgresStore) GetCachedSchema(ctx context.Context, tenantID string) (*models.SchemaSnapshot, error) {
	query := `
		SELECT snapshot, captured_at
		FROM engine_schema_cache
		WHERE tenant_id = $1`

	var raw []byte
	var capturedAt time.Time
	err := s.pool.QueryRow(ctx, query, tenantID).Scan(&raw, &capturedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached schema: %w", err)
	}

	var snapshot models.SchemaSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		// A corrupt snapshot is treated as a miss so the next refresh
		// overwrites it.
		s.logger.Warn("discarding unreadable schema snapshot",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return nil, nil
	}
	snapshot.CapturedAt = capturedAt

	return &snapshot, nil
}

func (s *PostgresStore) SaveSchema(ctx context.Context, tenantID string, snapshot *models.SchemaSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal schema snapshot: %w", err)
	}

	query := `
		INSERT INTO engine_schema_cache (tenant_id, snapshot, captured_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id)
		DO UPDATE SET snapshot = EXCLUDED.snapshot, captured_at = EXCLUDED.captured_at`

	if _, err := s.pool.Exec(ctx, query, tenantID, raw, snapshot.CapturedAt); err != nil {
		return fmt.Errorf("failed to save schema snapshot: %w", err)
	}

	return nil
}

func (s *PostgresStore) ListTableMetadata(ctx context.Context, tenantID string) ([]*models.TableMetadata, error) {
	tableQuery := `
		SELECT id, tenant_id, table_name, display_name, description,
		       grain_description, data_source, update_frequency, important_notes,
		       COALESCE(common_joins, ''), COALESCE(common_filters, ''),
		       COALESCE(sample_queries, ''), created_at, updated_at
		FROM engine_table_metadata
		WHERE tenant_id = $1
		ORDER BY table_name`

	rows, err := s.pool.Query(ctx, tableQuery, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list table metadata: %w", err)
	}
	defer rows.Close()

	tables := make([]*models.TableMetadata, 0)
	byName := make(map[string]*models.TableMetadata)
	for rows.Next() {
		var t models.TableMetadata
		err := rows.Scan(
			&t.ID, &t.TenantID, &t.TableName, &t.DisplayName, &t.Description,
			&t.GrainDescription, &t.DataSource, &t.UpdateFrequency, &t.ImportantNotes,
			&t.CommonJoins, &t.CommonFilters, &t.SampleQueries,
			&t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table metadata: %w", err)
		}
		tables = append(tables, &t)
		byName[t.TableName] = &t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating table metadata: %w", err)
	}

	if len(tables) == 0 {
		return tables, nil
	}

	columnQuery := `
		SELECT id, tenant_id, table_name, column_name, description, unit,
		       computed_logic, COALESCE(synonyms, ''), COALESCE(sample_values, ''),
		       COALESCE(value_mapping, ''), is_primary_key, is_foreign_key,
		       foreign_key_ref, created_at, updated_at
		FROM engine_column_metadata
		WHERE tenant_id = $1
		ORDER BY table_name, column_name`

	colRows, err := s.pool.Query(ctx, columnQuery, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list column metadata: %w", err)
	}
	defer colRows.Close()

	for colRows.Next() {
		var c models.ColumnMetadata
		err := colRows.Scan(
			&c.ID, &c.TenantID, &c.TableName, &c.ColumnName, &c.Description, &c.Unit,
			&c.ComputedLogic, &c.Synonyms, &c.SampleValues,
			&c.ValueMapping, &c.IsPrimaryKey, &c.IsForeignKey,
			&c.ForeignKeyRef, &c.CreatedAt, &c.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		// Column overlays without a matching table overlay are dropped; the
		// context builder only walks tables.
		if t, ok := byName[c.TableName]; ok {
			t.Columns = append(t.Columns, c)
		}
	}
	if err := colRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}

	return tables, nil
}

func (s *PostgresStore) ListBusinessTerms(ctx context.Context, tenantID string) ([]*models.BusinessTerm, error) {
	query := `
		SELECT id, tenant_id, term, definition, sql_mapping,
		       COALESCE(related_tables, ''), created_at, updated_at
		FROM engine_business_terms
		WHERE tenant_id = $1
		ORDER BY term`

	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list business terms: %w", err)
	}
	defer rows.Close()

	terms := make([]*models.BusinessTerm, 0)
	for rows.Next() {
		var t models.BusinessTerm
		err := rows.Scan(
			&t.ID, &t.TenantID, &t.Term, &t.Definition, &t.SQLMapping,
			&t.RelatedTables, &t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan business term: %w", err)
		}
		terms = append(terms, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating business terms: %w", err)
	}

	return terms, nil
}

func (s *PostgresStore) RecordQuery(ctx context.Context, record *models.QueryRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO engine_query_log (
			id, tenant_id, user_id, question, sql_text, explanation,
			success, error_text, row_count, execution_time_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		record.ID, record.TenantID, record.UserID, record.Question,
		record.SQL, record.Explanation, record.Success, record.Error,
		record.RowCount, record.ExecutionTimeMs, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record query: %w", err)
	}

	return nil
}

func (s *PostgresStore) CountQueriesSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM engine_query_log
		WHERE tenant_id = $1 AND created_at >= $2`

	var count int
	if err := s.pool.QueryRow(ctx, query, tenantID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count queries: %w", err)
	}

	return count, nil
}
