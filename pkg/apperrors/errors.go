// Package apperrors defines the error taxonomy of the query pipeline.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNoConfiguration indicates no usable warehouse credentials exist for
	// the tenant: no active tenant record and no fallback configuration.
	ErrNoConfiguration = errors.New("no warehouse configuration found")

	// ErrTenantNotFound indicates the tenant record does not exist.
	ErrTenantNotFound = errors.New("tenant not found")
)

// ConnectionError indicates the warehouse connect handshake failed.
type ConnectionError struct {
	TenantID string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("warehouse connection failed for tenant %s: %v", e.TenantID, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IntrospectionError indicates a metadata query failed during a schema
// refresh. A refresh never yields partial results; the whole pass aborts.
type IntrospectionError struct {
	Schema string
	Err    error
}

func (e *IntrospectionError) Error() string {
	if e.Schema != "" {
		return fmt.Sprintf("schema introspection failed for %s: %v", e.Schema, e.Err)
	}
	return fmt.Sprintf("schema introspection failed: %v", e.Err)
}

func (e *IntrospectionError) Unwrap() error { return e.Err }

// UnsafeQueryError indicates the safety validator rejected a statement.
// Violation names the rule that fired (e.g. the forbidden keyword).
type UnsafeQueryError struct {
	Violation string
}

func (e *UnsafeQueryError) Error() string {
	return fmt.Sprintf("unsafe query rejected: %s", e.Violation)
}

// ExecutionError wraps the warehouse's own error for a failed statement,
// including statement timeouts.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
