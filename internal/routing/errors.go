package routing

import (
	"fmt"

	"callcenter-platform/internal/telephony"
)

// NotConfiguredError means the tenant has no active provider config. Maps to
// HTTP 404 at the API boundary.
type NotConfiguredError struct {
	TenantID string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("routing: tenant %s has no active provider config", e.TenantID)
}

// NoBackupAvailableError means a failover was requested but the tenant has no
// backup provider to promote.
type NoBackupAvailableError struct {
	TenantID string
}

func (e *NoBackupAvailableError) Error() string {
	return fmt.Sprintf("routing: tenant %s has no backup provider configured", e.TenantID)
}

// RoutingFailedError is the terminal routing failure: the primary attempt
// failed and either no backup existed or the one retry against the promoted
// backup failed too. Provider names the last provider attempted.
type RoutingFailedError struct {
	TenantID string
	Provider telephony.ProviderName
	Err      error
}

func (e *RoutingFailedError) Error() string {
	return fmt.Sprintf("routing: call for tenant %s failed on %s: %v", e.TenantID, e.Provider, e.Err)
}

func (e *RoutingFailedError) Unwrap() error { return e.Err }
