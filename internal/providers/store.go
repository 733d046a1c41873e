package providers

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("providers: no active config for tenant")
	ErrNoBackup = errors.New("providers: no backup provider configured")

	// ErrActiveConfig is returned when deletion of an active config is
	// attempted; active configs are replaced, never deleted.
	ErrActiveConfig = errors.New("providers: active config cannot be deleted")
)

// Store is the persistence contract for provider configs.
//
// UpsertConfig and SwapToBackup must be transactional (all-or-nothing); they
// are the only mutations of shared state across requests.
type Store interface {
	GetActiveConfig(ctx context.Context, tenantID string) (Config, error)

	// UpsertConfig replaces any prior config for the tenant entirely.
	UpsertConfig(ctx context.Context, cfg Config) error

	// SwapToBackup atomically promotes the backup provider to primary:
	// provider/credentials take the backup values, the backup fields are
	// cleared, and ErrorCount is incremented. Fails with ErrNoBackup when no
	// backup is configured and ErrNotFound when the tenant has no config.
	SwapToBackup(ctx context.Context, tenantID string, now time.Time) (Config, error)

	// MarkTested records a successful credential verification: TestedAt is
	// set and ErrorCount reset to zero.
	MarkTested(ctx context.Context, tenantID string, now time.Time) error

	ListActiveTenantIDs(ctx context.Context) ([]string, error)

	// DeleteConfig removes an inactive config; deleting the active config is
	// rejected with ErrActiveConfig.
	DeleteConfig(ctx context.Context, tenantID string) error
}
