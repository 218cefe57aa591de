// Package config loads process configuration from YAML and environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/snowquery/engine/pkg/models"
)

// Config holds all configuration for the query engine.
// Configuration can come from a YAML file (config.yaml) or environment
// variables; environment variables override YAML values. Secrets
// (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// DefaultTenantID is used for unauthenticated/demo requests that do not
	// name a tenant.
	DefaultTenantID string `yaml:"default_tenant_id" env:"DEFAULT_TENANT_ID" env-default:"default"`

	// Metadata store (PostgreSQL). Disabled means fallback mode: tenant
	// config comes from Warehouse below and caches live in process memory.
	Store StoreConfig `yaml:"store"`

	// Fallback warehouse connection, used when no tenant record exists.
	Warehouse WarehouseConfig `yaml:"warehouse"`

	// Language model provider settings.
	LLM LLMConfig `yaml:"llm"`

	// Warehouse connection pool tunables.
	Pool PoolConfig `yaml:"pool"`
}

// StoreConfig holds PostgreSQL metadata store configuration.
type StoreConfig struct {
	Enabled        bool   `yaml:"enabled" env:"STORE_ENABLED" env-default:"true"`
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"snowquery"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"snowquery"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// URL builds the Postgres connection URL.
func (c *StoreConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// WarehouseConfig holds the environment-backed fallback tenant connection.
type WarehouseConfig struct {
	Account    string `yaml:"account" env:"WAREHOUSE_ACCOUNT"`
	Principal  string `yaml:"principal" env:"WAREHOUSE_USER"`
	Password   string `yaml:"-" env:"WAREHOUSE_PASSWORD"`    // Secret - not in YAML
	PrivateKey string `yaml:"-" env:"WAREHOUSE_PRIVATE_KEY"` // Secret - not in YAML
	Warehouse  string `yaml:"warehouse" env:"WAREHOUSE_COMPUTE"`
	Database   string `yaml:"database" env:"WAREHOUSE_DATABASE"`
	Schemas    string `yaml:"schemas" env:"WAREHOUSE_SCHEMAS" env-default:"PUBLIC"`
	Role       string `yaml:"role" env:"WAREHOUSE_ROLE" env-default:"PUBLIC"`

	MaxRowsPerQuery  int `yaml:"max_rows_per_query" env:"MAX_ROWS_PER_QUERY" env-default:"1000"`
	QueryTimeoutSecs int `yaml:"query_timeout_secs" env:"QUERY_TIMEOUT_SECS" env-default:"60"`
}

// FallbackTenant builds the fallback connection config from the environment
// settings. Returns false when the fallback is not configured.
func (c *WarehouseConfig) FallbackTenant() (*models.TenantConnectionConfig, bool) {
	if c.Account == "" || c.Principal == "" || c.Database == "" {
		return nil, false
	}
	if c.Password == "" && c.PrivateKey == "" {
		return nil, false
	}

	schemas := []string{}
	for _, s := range strings.Split(c.Schemas, ",") {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			schemas = append(schemas, trimmed)
		}
	}

	return &models.TenantConnectionConfig{
		Account:          c.Account,
		Principal:        c.Principal,
		Password:         c.Password,
		PrivateKey:       c.PrivateKey,
		Warehouse:        c.Warehouse,
		Database:         c.Database,
		Schemas:          schemas,
		Role:             c.Role,
		MaxRowsPerQuery:  c.MaxRowsPerQuery,
		QueryTimeoutSecs: c.QueryTimeoutSecs,
	}, true
}

// LLMConfig holds language model provider configuration.
type LLMConfig struct {
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"anthropic"`
	Endpoint string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:""`
	APIKey   string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Model    string `yaml:"model" env:"LLM_MODEL" env-default:"claude-sonnet-4-20250514"`
}

// PoolConfig holds warehouse connection pool tunables.
type PoolConfig struct {
	TTLMinutes int `yaml:"ttl_minutes" env:"POOL_TTL_MINUTES" env-default:"30"`
}

// Load reads configuration from config.yaml (if present) and the
// environment, then validates it.
func Load(version string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("read environment: %w", err)
		}
	}

	cfg.Version = version

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.LLM.Provider == "" {
		return fmt.Errorf("llm provider is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}
	if !c.Store.Enabled {
		if _, ok := c.Warehouse.FallbackTenant(); !ok {
			return fmt.Errorf("store disabled and no fallback warehouse configured: " +
				"set WAREHOUSE_ACCOUNT, WAREHOUSE_USER, WAREHOUSE_DATABASE and a credential")
		}
	}
	return nil
}
