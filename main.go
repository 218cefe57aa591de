package main

import (
	"context"
	"log"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/snowquery/engine/pkg/config"
	"github.com/snowquery/engine/pkg/handlers"
	"github.com/snowquery/engine/pkg/llm"
	"github.com/snowquery/engine/pkg/logging"
	"github.com/snowquery/engine/pkg/services"
	"github.com/snowquery/engine/pkg/store"
	"github.com/snowquery/engine/pkg/warehouse"
	"github.com/snowquery/engine/pkg/warehouse/mssql"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("default_tenant", cfg.DefaultTenantID),
		zap.Bool("store_enabled", cfg.Store.Enabled),
		zap.String("llm_provider", cfg.LLM.Provider),
	)

	ctx := context.Background()

	var st store.Store
	if cfg.Store.Enabled {
		pg, err := store.NewPostgresStore(ctx, &store.PostgresConfig{
			URL:            cfg.Store.URL(),
			MaxConnections: cfg.Store.MaxConnections,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to connect to metadata store",
				zap.String("error", logging.SanitizeError(err)))
		}
		if err := pg.RunMigrations(cfg.Store.MigrationsPath); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		st = pg
	} else {
		logger.Info("Metadata store disabled, running in fallback mode")
		st = store.NewMemoryStore()
	}
	defer st.Close()

	fallback, _ := cfg.Warehouse.FallbackTenant()

	pool := warehouse.NewPool(mssql.New(), cfg.Pool.TTLMinutes, logger)
	defer func() { _ = pool.Close() }()

	introspector := warehouse.NewIntrospector(mssql.New(), logger)
	resolver := services.NewTenantConfigResolver(st, fallback, logger)
	cache := services.NewSchemaCache(st, resolver, pool, introspector, logger)
	builder := services.NewContextBuilder(st, cache, resolver, logger)

	client, err := llm.NewClient(&llm.Config{
		Provider: cfg.LLM.Provider,
		Endpoint: cfg.LLM.Endpoint,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create LLM client", zap.Error(err))
	}

	translator := services.NewTranslator(client, builder, resolver, logger)
	executor := services.NewExecutor(resolver, pool, logger)
	pipeline := services.NewPipeline(translator, executor, st, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewQueryHandler(pipeline, resolver, st, cfg.DefaultTenantID, logger).RegisterRoutes(mux)
	handlers.NewSchemaHandler(cache, cfg.DefaultTenantID, logger).RegisterRoutes(mux)

	addr := net.JoinHostPort(cfg.BindAddr, cfg.Port)
	logger.Info("Starting snowquery-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version),
	)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
