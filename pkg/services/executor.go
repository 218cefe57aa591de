package services

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/snowquery/engine/pkg/apperrors"
	"github.com/snowquery/engine/pkg/logging"
	"github.com/snowquery/engine/pkg/models"
	"github.com/snowquery/engine/pkg/sqlsafety"
	"github.com/snowquery/engine/pkg/warehouse"
)

// Executor runs validated statements against the tenant's warehouse under
// the tenant's statement timeout and row cap.
type Executor struct {
	resolver *TenantConfigResolver
	pool     *warehouse.Pool
	logger   *zap.Logger
}

// NewExecutor creates an executor.
func NewExecutor(resolver *TenantConfigResolver, pool *warehouse.Pool, logger *zap.Logger) *Executor {
	return &Executor{
		resolver: resolver,
		pool:     pool,
		logger:   logger.Named("executor"),
	}
}

// Execute validates and runs one statement. Rows are read up to the
// tenant's cap; Truncated reports whether the raw result reached the cap.
// Every cell is serialized to a JSON-safe primitive.
//
// The statement runs under a context deadline derived from the tenant's
// configured timeout, composed with whatever deadline the caller already
// carries.
func (e *Executor) Execute(ctx context.Context, tenantID, sqlQuery string) (*models.QueryResult, error) {
	cfg, err := e.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if err := sqlsafety.Validate(sqlQuery); err != nil {
		return nil, err
	}

	db, err := e.pool.Acquire(ctx, tenantID, cfg)
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout())
	defer cancel()

	started := time.Now()
	rows, err := db.QueryContext(queryCtx, sqlQuery)
	if err != nil {
		return nil, &apperrors.ExecutionError{Err: err}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, &apperrors.ExecutionError{Err: fmt.Errorf("read columns: %w", err)}
	}

	result := &models.QueryResult{
		Columns: columns,
		Data:    make([]map[string]any, 0),
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		// Stop at the cap; Truncated is set below. No exact overflow count
		// is computed.
		if len(result.Data) >= cfg.MaxRowsPerQuery {
			break
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, &apperrors.ExecutionError{Err: fmt.Errorf("scan row: %w", err)}
		}

		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = serializeCell(values[i])
		}
		result.Data = append(result.Data, record)
	}
	if err := rows.Err(); err != nil {
		return nil, &apperrors.ExecutionError{Err: err}
	}

	result.RowCount = len(result.Data)
	if result.RowCount >= cfg.MaxRowsPerQuery {
		result.Truncated = true
	}

	e.logger.Info("query executed",
		zap.String("tenant_id", tenantID),
		zap.String("query", logging.SanitizeQuery(sqlQuery)),
		zap.Int("rows", result.RowCount),
		zap.Bool("truncated", result.Truncated),
		zap.Duration("elapsed", time.Since(started)),
	)

	return result, nil
}

// serializeCell converts a driver value to a JSON-safe primitive: times to
// ISO-8601, binary to hex, everything else passed through.
func serializeCell(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case []byte:
		return hex.EncodeToString(val)
	case sql.RawBytes:
		return hex.EncodeToString(val)
	default:
		return val
	}
}
