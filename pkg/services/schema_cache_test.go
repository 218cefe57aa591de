package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snowquery/engine/pkg/models"
	"github.com/snowquery/engine/pkg/store"
	"github.com/snowquery/engine/pkg/testhelpers"
	"github.com/snowquery/engine/pkg/warehouse"
)

// countingIntrospector returns a canned snapshot and counts passes.
type countingIntrospector struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *countingIntrospector) Introspect(ctx context.Context, db *sql.DB, database string, schemas []string) (*models.SchemaSnapshot, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	return &models.SchemaSnapshot{
		Tables:     sampleSnapshot().Tables,
		CapturedAt: time.Now().UTC(),
	}, nil
}

func (f *countingIntrospector) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type cacheFixture struct {
	store        *store.MemoryStore
	cache        *SchemaCache
	introspector *countingIntrospector
	pool         *warehouse.Pool
}

// newCacheFixture builds a cache over a fake warehouse driver. The resolver
// carries a fallback config so tenants without a store record still resolve.
func newCacheFixture(t *testing.T) *cacheFixture {
	t.Helper()

	logger := zap.NewNop()
	st := store.NewMemoryStore()
	pool := warehouse.NewPool(&testhelpers.FakeDriver{}, 30, logger)
	t.Cleanup(func() { pool.Close() })

	resolver := NewTenantConfigResolver(st, testhelpers.TenantConfig(), logger)
	introspector := &countingIntrospector{}
	return &cacheFixture{
		store:        st,
		cache:        NewSchemaCache(st, resolver, pool, introspector, logger),
		introspector: introspector,
		pool:         pool,
	}
}

func TestSchemaCache_FreshStoreSnapshotSkipsIntrospection(t *testing.T) {
	f := newCacheFixture(t)
	f.store.PutTenant(&models.Tenant{ID: "acme", IsActive: true, Connection: *testhelpers.TenantConfig()})
	require.NoError(t, f.store.SaveSchema(context.Background(), "acme", sampleSnapshot()))

	snapshot, err := f.cache.Get(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, snapshot.Tables, 1)
	assert.Equal(t, 0, f.introspector.Calls())
}

func TestSchemaCache_ExpiredStoreSnapshotReintrospects(t *testing.T) {
	f := newCacheFixture(t)
	f.store.PutTenant(&models.Tenant{ID: "acme", IsActive: true, Connection: *testhelpers.TenantConfig()})

	stale := sampleSnapshot()
	stale.CapturedAt = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, f.store.SaveSchema(context.Background(), "acme", stale))

	snapshot, err := f.cache.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, f.introspector.Calls())

	// The fresh snapshot replaced the stale one in the store.
	saved, err := f.store.GetCachedSchema(context.Background(), "acme")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.WithinDuration(t, snapshot.CapturedAt, saved.CapturedAt, time.Second)
}

func TestSchemaCache_FallbackTenantUsesMemory(t *testing.T) {
	f := newCacheFixture(t)

	_, err := f.cache.Get(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, 1, f.introspector.Calls())

	// Second call within the TTL serves from process memory.
	_, err = f.cache.Get(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, 1, f.introspector.Calls())

	// Nothing was persisted for a tenant without a record.
	saved, err := f.store.GetCachedSchema(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, saved)
}

func TestSchemaCache_InvalidateDropsMemoryEntry(t *testing.T) {
	f := newCacheFixture(t)

	_, err := f.cache.Get(context.Background(), "unknown")
	require.NoError(t, err)

	f.cache.Invalidate("unknown")

	_, err = f.cache.Get(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, 2, f.introspector.Calls())
}

func TestSchemaCache_RefreshForcesIntrospection(t *testing.T) {
	f := newCacheFixture(t)
	f.store.PutTenant(&models.Tenant{ID: "acme", IsActive: true, Connection: *testhelpers.TenantConfig()})
	require.NoError(t, f.store.SaveSchema(context.Background(), "acme", sampleSnapshot()))

	_, err := f.cache.Refresh(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, f.introspector.Calls())
}

func TestSchemaCache_FailedForcedRefreshDropsMemoryEntry(t *testing.T) {
	f := newCacheFixture(t)

	_, err := f.cache.Get(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, 1, f.introspector.Calls())

	// The forced refresh fails; the pre-refresh snapshot must not survive
	// it, even though its TTL has not expired.
	f.introspector.err = assert.AnError
	_, err = f.cache.Refresh(context.Background(), "unknown")
	require.Error(t, err)

	f.introspector.err = nil
	_, err = f.cache.Get(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, 3, f.introspector.Calls())
}

func TestSchemaCache_ColdCacheSingleflight(t *testing.T) {
	f := newCacheFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.cache.Get(context.Background(), "unknown")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Concurrent misses for one tenant collapse into very few passes; with
	// all callers arriving before the first completes, exactly one.
	assert.LessOrEqual(t, f.introspector.Calls(), 2)
}

func TestSchemaCache_FailedRefreshPropagates(t *testing.T) {
	f := newCacheFixture(t)
	f.introspector.err = assert.AnError

	stale := sampleSnapshot()
	stale.CapturedAt = time.Now().UTC().Add(-time.Hour)
	f.store.PutTenant(&models.Tenant{ID: "acme", IsActive: true, Connection: *testhelpers.TenantConfig()})
	require.NoError(t, f.store.SaveSchema(context.Background(), "acme", stale))

	// A stale snapshot is never served in place of a failed refresh.
	_, err := f.cache.Get(context.Background(), "acme")
	require.Error(t, err)
}
