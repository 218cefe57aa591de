// Package store persists engine metadata: tenant records, curated table and
// column overlays, the business glossary, cached schema snapshots, and the
// query log. The warehouse itself is never touched from here.
package store

import (
	"context"
	"time"

	"github.com/snowquery/engine/pkg/models"
)

// Store provides read access to tenant configuration and curated metadata
// plus writes for the schema cache and query log.
//
// Absence is a normal outcome for every read: GetTenant returns
// apperrors.ErrTenantNotFound, GetCachedSchema returns (nil, nil), and the
// metadata listers return empty slices.
type Store interface {
	// GetTenant returns the tenant record, active or not.
	GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error)

	// GetCachedSchema returns the persisted schema snapshot for the tenant,
	// or (nil, nil) when none has been saved.
	GetCachedSchema(ctx context.Context, tenantID string) (*models.SchemaSnapshot, error)

	// SaveSchema persists a snapshot, replacing any previous one.
	SaveSchema(ctx context.Context, tenantID string, snapshot *models.SchemaSnapshot) error

	// ListTableMetadata returns the curated table overlays with their
	// column overlays attached, ordered by table name.
	ListTableMetadata(ctx context.Context, tenantID string) ([]*models.TableMetadata, error)

	// ListBusinessTerms returns the glossary ordered by term.
	ListBusinessTerms(ctx context.Context, tenantID string) ([]*models.BusinessTerm, error)

	// RecordQuery appends one query-log entry.
	RecordQuery(ctx context.Context, record *models.QueryRecord) error

	// CountQueriesSince returns the number of logged queries for the tenant
	// at or after the given instant.
	CountQueriesSince(ctx context.Context, tenantID string, since time.Time) (int, error)

	// Close releases the underlying resources.
	Close()
}
