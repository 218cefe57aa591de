package testhelpers

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/snowquery/engine/pkg/store"
)

// PostgresTestImage backs the metadata store in integration tests.
const PostgresTestImage = "postgres:16-alpine"

// TestStore holds a shared metadata store container with migrations applied.
type TestStore struct {
	Container testcontainers.Container
	Store     *store.PostgresStore
	ConnStr   string
}

var (
	sharedTestStore     *TestStore
	sharedTestStoreOnce sync.Once
	sharedTestStoreErr  error
)

// GetTestStore returns a shared migrated PostgreSQL store for integration
// tests. The container is created once and reused across all tests in the run.
func GetTestStore(t *testing.T) *TestStore {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestStoreOnce.Do(func() {
		sharedTestStore, sharedTestStoreErr = setupTestStore()
	})

	if sharedTestStoreErr != nil {
		t.Fatalf("Failed to setup test store: %v", sharedTestStoreErr)
	}

	return sharedTestStore
}

func setupTestStore() (*TestStore, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresTestImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "engine_test",
			"POSTGRES_USER":     "engine",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://engine:test_password@%s:%s/engine_test?sslmode=disable",
		host, port.Port())

	st, err := store.NewPostgresStore(ctx, &store.PostgresConfig{
		URL:            connStr,
		MaxConnections: 5,
	}, zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test store: %w", err)
	}

	if err := st.RunMigrations(migrationsDir()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestStore{
		Container: container,
		Store:     st,
		ConnStr:   connStr,
	}, nil
}

// migrationsDir resolves the repository migrations directory relative to this
// source file, so tests work regardless of the package they run from.
func migrationsDir() string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "migrations")
}
