package warehouse_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snowquery/engine/pkg/apperrors"
	"github.com/snowquery/engine/pkg/testhelpers"
	"github.com/snowquery/engine/pkg/warehouse"
)

func newPool(t *testing.T, driver *testhelpers.FakeDriver) *warehouse.Pool {
	t.Helper()
	pool := warehouse.NewPool(driver, 30, zap.NewNop())
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestAcquire_ReusesConnectionPerTenant(t *testing.T) {
	driver := &testhelpers.FakeDriver{}
	pool := newPool(t, driver)
	cfg := testhelpers.TenantConfig()

	first, err := pool.Acquire(context.Background(), "acme", cfg)
	require.NoError(t, err)

	second, err := pool.Acquire(context.Background(), "acme", cfg)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, driver.OpenCalls())
	assert.Equal(t, 1, pool.Size())
}

func TestAcquire_SeparateConnectionsPerTenant(t *testing.T) {
	driver := &testhelpers.FakeDriver{}
	pool := newPool(t, driver)

	a, err := pool.Acquire(context.Background(), "acme", testhelpers.TenantConfig())
	require.NoError(t, err)
	b, err := pool.Acquire(context.Background(), "globex", testhelpers.TenantConfig())
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, driver.OpenCalls())
	assert.Equal(t, 2, pool.Size())
}

func TestAcquire_ConcurrentSameTenantSingleflight(t *testing.T) {
	driver := &testhelpers.FakeDriver{}
	pool := newPool(t, driver)
	cfg := testhelpers.TenantConfig()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Acquire(context.Background(), "acme", cfg)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, pool.Size())
	// Callers arriving after the first handshake completed may re-enter, but
	// they find the healthy cached connection instead of opening another.
	assert.LessOrEqual(t, driver.OpenCalls(), 2)
}

func TestAcquire_InvalidConfigRejectedBeforeConnecting(t *testing.T) {
	driver := &testhelpers.FakeDriver{}
	pool := newPool(t, driver)

	cfg := testhelpers.TenantConfig()
	cfg.Password = ""
	cfg.PrivateKey = ""

	_, err := pool.Acquire(context.Background(), "acme", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tenant config")
	assert.Equal(t, 0, driver.OpenCalls())
}

func TestAcquire_OpenFailureWrapped(t *testing.T) {
	driver := &testhelpers.FakeDriver{OpenErr: errors.New("login failed for user")}
	pool := newPool(t, driver)

	_, err := pool.Acquire(context.Background(), "acme", testhelpers.TenantConfig())
	require.Error(t, err)

	var connErr *apperrors.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "acme", connErr.TenantID)
	assert.Equal(t, 0, pool.Size())
}

func TestDestroy_NextAcquireReopens(t *testing.T) {
	driver := &testhelpers.FakeDriver{}
	pool := newPool(t, driver)
	cfg := testhelpers.TenantConfig()

	_, err := pool.Acquire(context.Background(), "acme", cfg)
	require.NoError(t, err)

	pool.Destroy("acme")
	assert.Equal(t, 0, pool.Size())

	_, err = pool.Acquire(context.Background(), "acme", cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, driver.OpenCalls())
}

func TestClose_Idempotent(t *testing.T) {
	pool := warehouse.NewPool(&testhelpers.FakeDriver{}, 30, zap.NewNop())

	_, err := pool.Acquire(context.Background(), "acme", testhelpers.TenantConfig())
	require.NoError(t, err)

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())
	assert.Equal(t, 0, pool.Size())
}
