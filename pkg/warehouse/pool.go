package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/snowquery/engine/pkg/apperrors"
	"github.com/snowquery/engine/pkg/logging"
	"github.com/snowquery/engine/pkg/models"
	"github.com/snowquery/engine/pkg/retry"
)

const (
	DefaultConnectionTTLMinutes = 30
	DefaultCleanupInterval      = 1 * time.Minute

	healthCheckTimeout = 5 * time.Second
)

// Pool owns at most one live warehouse connection per tenant id. A dead
// connection is evicted and replaced transparently on the next acquire and
// never reused across tenants.
type Pool struct {
	mu          sync.RWMutex
	connections map[string]*pooledConnection
	driver      Driver
	group       singleflight.Group
	ttl         time.Duration
	stopped     bool
	stopChan    chan struct{}
	logger      *zap.Logger
}

type pooledConnection struct {
	db       *sql.DB
	lastUsed time.Time
}

// NewPool creates a connection pool over the given warehouse driver.
// Starts a background cleanup goroutine that runs until Close() is called.
func NewPool(driver Driver, ttlMinutes int, logger *zap.Logger) *Pool {
	if ttlMinutes <= 0 {
		ttlMinutes = DefaultConnectionTTLMinutes
	}

	p := &Pool{
		connections: make(map[string]*pooledConnection),
		driver:      driver,
		ttl:         time.Duration(ttlMinutes) * time.Minute,
		stopChan:    make(chan struct{}),
		logger:      logger.Named("pool"),
	}

	go p.cleanupExpiredConnections()
	return p
}

// Acquire returns the tenant's live connection, opening a new one when none
// exists or the existing one fails its liveness check. Acquisition for a
// given tenant id is single-flighted: two concurrent requests for the same
// tenant share one handshake, while different tenants proceed in parallel.
func (p *Pool) Acquire(ctx context.Context, tenantID string, cfg *models.TenantConnectionConfig) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tenant config: %w", err)
	}

	v, err, _ := p.group.Do(tenantID, func() (any, error) {
		return p.acquire(ctx, tenantID, cfg)
	})
	if err != nil {
		return nil, err
	}
	return v.(*sql.DB), nil
}

func (p *Pool) acquire(ctx context.Context, tenantID string, cfg *models.TenantConnectionConfig) (*sql.DB, error) {
	p.mu.RLock()
	existing, exists := p.connections[tenantID]
	p.mu.RUnlock()

	if exists {
		healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := existing.db.PingContext(healthCtx)
		if err != nil && retry.IsRetryable(err) {
			// Transient ping failures get the backoff schedule; anything
			// else evicts the connection immediately.
			err = retry.Do(healthCtx, retry.DefaultConfig(), func() error {
				return existing.db.PingContext(healthCtx)
			})
		}
		cancel()

		if err == nil {
			p.touch(tenantID)
			return existing.db, nil
		}

		p.logger.Warn("connection unhealthy, recreating",
			zap.String("tenant_id", tenantID),
			zap.String("error", logging.SanitizeError(err)),
		)
		p.remove(tenantID)
	}

	db, err := p.driver.Open(ctx, cfg)
	if err != nil {
		return nil, &apperrors.ConnectionError{TenantID: tenantID, Err: err}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &apperrors.ConnectionError{TenantID: tenantID, Err: err}
	}

	p.mu.Lock()
	p.connections[tenantID] = &pooledConnection{db: db, lastUsed: time.Now()}
	total := len(p.connections)
	p.mu.Unlock()

	p.logger.Info("opened warehouse connection",
		zap.String("tenant_id", tenantID),
		zap.String("database", cfg.Database),
		zap.Int("total_connections", total),
	)

	return db, nil
}

func (p *Pool) touch(tenantID string) {
	p.mu.Lock()
	if conn, ok := p.connections[tenantID]; ok {
		conn.lastUsed = time.Now()
	}
	p.mu.Unlock()
}

func (p *Pool) remove(tenantID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.connections[tenantID]; ok {
		conn.db.Close()
		delete(p.connections, tenantID)
		p.logger.Debug("removed connection", zap.String("tenant_id", tenantID))
	}
}

// Destroy forcibly closes and evicts the tenant's connection. Used for
// credential rotation or tenant deactivation.
func (p *Pool) Destroy(tenantID string) {
	p.remove(tenantID)
}

// cleanupExpiredConnections runs periodically to remove idle connections.
// Runs in a background goroutine until stopChan is closed.
func (p *Pool) cleanupExpiredConnections() {
	ticker := time.NewTicker(DefaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.performCleanup()
		case <-p.stopChan:
			return
		}
	}
}

func (p *Pool) performCleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}

	now := time.Now()
	removed := 0
	for tenantID, conn := range p.connections {
		if now.Sub(conn.lastUsed) > p.ttl {
			conn.db.Close()
			delete(p.connections, tenantID)
			removed++
		}
	}

	if removed > 0 {
		p.logger.Info("cleaned up idle connections",
			zap.Int("count", removed),
			zap.Int("remaining", len(p.connections)),
		)
	}
}

// Close closes all connections and stops the cleanup goroutine.
// Idempotent and safe to call multiple times.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}

	p.stopped = true
	close(p.stopChan)

	for _, conn := range p.connections {
		conn.db.Close()
	}
	p.connections = make(map[string]*pooledConnection)

	p.logger.Info("connection pool closed")
	return nil
}

// Size returns the number of live connections. Safe to call concurrently.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.connections)
}
