// Package services contains the query pipeline: tenant config resolution,
// schema caching, context building, translation, execution, and the
// orchestrating pipeline itself.
package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/snowquery/engine/pkg/apperrors"
	"github.com/snowquery/engine/pkg/models"
	"github.com/snowquery/engine/pkg/store"
)

// TenantConfigResolver resolves the warehouse connection parameters for a
// tenant: from the metadata store when an active tenant record exists, or
// from the process-wide fallback configuration otherwise.
//
// Resolution is cheap and happens per request; the resolved config is never
// cached beyond the pool's connection object.
type TenantConfigResolver struct {
	store    store.Store
	fallback *models.TenantConnectionConfig
	logger   *zap.Logger
}

// NewTenantConfigResolver creates a resolver. fallback may be nil when every
// tenant is expected to have a store record.
func NewTenantConfigResolver(st store.Store, fallback *models.TenantConnectionConfig, logger *zap.Logger) *TenantConfigResolver {
	return &TenantConfigResolver{
		store:    st,
		fallback: fallback,
		logger:   logger.Named("tenant-config"),
	}
}

// Resolve returns the connection config for the tenant. An inactive or
// missing tenant record falls back to the environment-backed config;
// apperrors.ErrNoConfiguration is returned when neither source applies.
func (r *TenantConfigResolver) Resolve(ctx context.Context, tenantID string) (*models.TenantConnectionConfig, error) {
	tenant, err := r.store.GetTenant(ctx, tenantID)
	if err != nil && !errors.Is(err, apperrors.ErrTenantNotFound) {
		return nil, fmt.Errorf("resolve tenant config: %w", err)
	}

	if tenant != nil && tenant.IsActive {
		cfg := tenant.Connection
		return &cfg, nil
	}

	if r.fallback != nil {
		r.logger.Debug("using fallback warehouse configuration",
			zap.String("tenant_id", tenantID),
		)
		cfg := *r.fallback
		return &cfg, nil
	}

	return nil, fmt.Errorf("tenant %s: %w", tenantID, apperrors.ErrNoConfiguration)
}

// Tenant returns the stored tenant record, or (nil, nil) when none exists.
// Used for quota checks and to pick the schema cache backend.
func (r *TenantConfigResolver) Tenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	tenant, err := r.store.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, apperrors.ErrTenantNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return tenant, nil
}
