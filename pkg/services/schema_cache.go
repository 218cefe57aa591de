package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/snowquery/engine/pkg/logging"
	"github.com/snowquery/engine/pkg/models"
	"github.com/snowquery/engine/pkg/store"
	"github.com/snowquery/engine/pkg/warehouse"
)

// Cache thresholds. Snapshots persisted against a tenant record live longer
// than in-process fallback entries, which die with the process anyway.
const (
	StoreSchemaTTL  = time.Hour
	MemorySchemaTTL = 30 * time.Minute
)

// Introspector enumerates the warehouse schema over an open connection.
// Satisfied by *warehouse.Introspector.
type Introspector interface {
	Introspect(ctx context.Context, db *sql.DB, database string, schemas []string) (*models.SchemaSnapshot, error)
}

// SchemaCache serves schema snapshots, refreshing through the introspector
// when the cached copy is older than the TTL. Tenants with a store record
// persist snapshots there; fallback tenants cache in process memory.
//
// A failed refresh propagates; a stale snapshot is never served in its
// place, since stale schema can produce SQL against columns that no longer
// exist.
type SchemaCache struct {
	store        store.Store
	resolver     *TenantConfigResolver
	pool         *warehouse.Pool
	introspector Introspector
	logger       *zap.Logger

	group singleflight.Group

	mu     sync.RWMutex
	memory map[string]*models.SchemaSnapshot
}

// NewSchemaCache creates the cache.
func NewSchemaCache(st store.Store, resolver *TenantConfigResolver, pool *warehouse.Pool, introspector Introspector, logger *zap.Logger) *SchemaCache {
	return &SchemaCache{
		store:        st,
		resolver:     resolver,
		pool:         pool,
		introspector: introspector,
		logger:       logger.Named("schema-cache"),
		memory:       make(map[string]*models.SchemaSnapshot),
	}
}

// Get returns a fresh-enough snapshot for the tenant, refreshing on miss or
// expiry. Concurrent cold-cache calls for one tenant trigger a single
// introspection pass.
func (c *SchemaCache) Get(ctx context.Context, tenantID string) (*models.SchemaSnapshot, error) {
	persisted, err := c.hasTenantRecord(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if persisted {
		snapshot, err := c.store.GetCachedSchema(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if snapshot != nil && snapshot.Age() < StoreSchemaTTL {
			return snapshot, nil
		}
	} else {
		c.mu.RLock()
		snapshot := c.memory[tenantID]
		c.mu.RUnlock()
		if snapshot != nil && snapshot.Age() < MemorySchemaTTL {
			return snapshot, nil
		}
	}

	return c.refresh(ctx, tenantID, persisted)
}

// Refresh forces a new introspection pass regardless of snapshot age. The
// caller is asserting the schema changed, so the old in-memory snapshot is
// dropped up front; a failed pass must not leave it behind for later Gets.
func (c *SchemaCache) Refresh(ctx context.Context, tenantID string) (*models.SchemaSnapshot, error) {
	persisted, err := c.hasTenantRecord(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	c.Invalidate(tenantID)
	return c.refresh(ctx, tenantID, persisted)
}

func (c *SchemaCache) hasTenantRecord(ctx context.Context, tenantID string) (bool, error) {
	tenant, err := c.resolver.Tenant(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return tenant != nil, nil
}

// refresh runs one introspection pass, single-flighted per tenant id so N
// concurrent misses pay for one pass.
func (c *SchemaCache) refresh(ctx context.Context, tenantID string, persisted bool) (*models.SchemaSnapshot, error) {
	v, err, _ := c.group.Do(tenantID, func() (any, error) {
		cfg, err := c.resolver.Resolve(ctx, tenantID)
		if err != nil {
			return nil, err
		}

		db, err := c.pool.Acquire(ctx, tenantID, cfg)
		if err != nil {
			return nil, err
		}

		started := time.Now()
		snapshot, err := c.introspector.Introspect(ctx, db, cfg.Database, cfg.Schemas)
		if err != nil {
			return nil, err
		}

		c.logger.Info("schema refreshed",
			zap.String("tenant_id", tenantID),
			zap.Int("tables", len(snapshot.Tables)),
			zap.Duration("elapsed", time.Since(started)),
		)

		if persisted {
			// Persisting is best-effort: the fresh snapshot is still good
			// for this request even if the save fails.
			if err := c.store.SaveSchema(ctx, tenantID, snapshot); err != nil {
				c.logger.Warn("failed to persist schema snapshot",
					zap.String("tenant_id", tenantID),
					zap.String("error", logging.SanitizeError(err)),
				)
			}
		} else {
			c.mu.Lock()
			c.memory[tenantID] = snapshot
			c.mu.Unlock()
		}

		return snapshot, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*models.SchemaSnapshot), nil
}

// Invalidate drops the in-memory snapshot for a tenant. Persisted snapshots
// are overwritten on the next refresh instead.
func (c *SchemaCache) Invalidate(tenantID string) {
	c.mu.Lock()
	delete(c.memory, tenantID)
	c.mu.Unlock()
}
