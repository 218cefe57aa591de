package models

import (
	"fmt"
	"strings"
	"time"
)

// Row cap and timeout bounds enforced on every tenant configuration.
const (
	MinRowsPerQuery = 10
	MaxRowsPerQuery = 10000

	MinQueryTimeoutSecs = 5
	MaxQueryTimeoutSecs = 120
)

// TenantConnectionConfig holds the resolved warehouse connection parameters
// for one tenant. It is immutable once resolved for a request and re-resolved
// per request; only the pooled connection object outlives the request.
type TenantConnectionConfig struct {
	Account    string   `json:"account"`   // warehouse account host, e.g. "acme.sql.example.net"
	Principal  string   `json:"principal"` // user or service identity
	Password   string   `json:"-"`         // secret - mutually exclusive with PrivateKey
	PrivateKey string   `json:"-"`         // signed-key material (PEM) - mutually exclusive with Password
	Warehouse  string   `json:"warehouse"` // compute unit name
	Database   string   `json:"database"`
	Schemas    []string `json:"schemas"` // first entry is the default schema
	Role       string   `json:"role"`

	MaxRowsPerQuery  int `json:"max_rows_per_query"`
	QueryTimeoutSecs int `json:"query_timeout_secs"`
}

// DefaultSchema returns the first configured schema.
func (c *TenantConnectionConfig) DefaultSchema() string {
	if len(c.Schemas) == 0 {
		return ""
	}
	return c.Schemas[0]
}

// QueryTimeout returns the configured statement timeout as a duration.
func (c *TenantConnectionConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSecs) * time.Second
}

// Validate checks the config before any network call is attempted.
// Exactly one of password / private key must be present.
func (c *TenantConnectionConfig) Validate() error {
	if c.Account == "" {
		return fmt.Errorf("account is required")
	}
	if c.Principal == "" {
		return fmt.Errorf("principal is required")
	}
	if c.Password == "" && c.PrivateKey == "" {
		return fmt.Errorf("either password or private key is required")
	}
	if c.Password != "" && c.PrivateKey != "" {
		return fmt.Errorf("password and private key are mutually exclusive")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if len(c.Schemas) == 0 || strings.TrimSpace(c.Schemas[0]) == "" {
		return fmt.Errorf("at least one schema is required")
	}
	if c.MaxRowsPerQuery < MinRowsPerQuery || c.MaxRowsPerQuery > MaxRowsPerQuery {
		return fmt.Errorf("max_rows_per_query must be between %d and %d", MinRowsPerQuery, MaxRowsPerQuery)
	}
	if c.QueryTimeoutSecs < MinQueryTimeoutSecs || c.QueryTimeoutSecs > MaxQueryTimeoutSecs {
		return fmt.Errorf("query_timeout_secs must be between %d and %d", MinQueryTimeoutSecs, MaxQueryTimeoutSecs)
	}
	return nil
}

// Tenant is the stored tenant record: identity, activation, quota, and the
// embedded connection configuration.
type Tenant struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	IsActive        bool                   `json:"is_active"`
	DailyQueryLimit int                    `json:"daily_query_limit"`
	Connection      TenantConnectionConfig `json:"connection"`

	SchemaCachedAt *time.Time `json:"schema_cached_at,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
