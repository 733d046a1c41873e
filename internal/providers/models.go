package providers

import (
	"errors"
	"time"

	"callcenter-platform/internal/telephony"
)

// Config is the per-tenant provider configuration. Exactly one active config
// exists per tenant, enforced by replace-on-write (a single row per tenant),
// not by multiple rows.
//
// Invariants:
// - BackupCredentials is set if and only if BackupProvider is set.
// - Credentials and BackupCredentials are encrypted blobs, decrypted only at
//   call time and never logged.
// - The active config is never hard-deleted; failover mutates it in place.
type Config struct {
	TenantID string                 `json:"tenant_id" db:"tenant_id"`
	Provider telephony.ProviderName `json:"provider" db:"provider"`

	// Credentials is the AEAD-encrypted credential blob.
	Credentials string `json:"-" db:"credentials"`

	IsActive bool `json:"is_active" db:"is_active"`

	BackupProvider    telephony.ProviderName `json:"backup_provider,omitempty" db:"backup_provider"`
	BackupCredentials string                 `json:"-" db:"backup_credentials"`

	// FailoverThreshold is the consecutive unhealthy-check count that triggers
	// proactive failover from the health loop.
	FailoverThreshold int `json:"failover_threshold" db:"failover_threshold"`

	// ErrorCount is incremented on failover events and reset on a successful
	// credential test.
	ErrorCount int `json:"error_count" db:"error_count"`

	// TestedAt is the last successful credential verification.
	TestedAt time.Time `json:"tested_at" db:"tested_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (c Config) HasBackup() bool {
	return c.BackupProvider != ""
}

func (c Config) Validate() error {
	if c.TenantID == "" {
		return errors.New("providers: tenant_id is required")
	}
	if c.Provider == "" {
		return errors.New("providers: provider is required")
	}
	if c.Credentials == "" {
		return errors.New("providers: credentials are required")
	}
	if (c.BackupProvider == "") != (c.BackupCredentials == "") {
		return errors.New("providers: backup credentials must be set iff backup provider is set")
	}
	if c.FailoverThreshold <= 0 {
		return errors.New("providers: failover_threshold must be > 0")
	}
	return nil
}

// Summary is the non-secret view returned to API callers.
type Summary struct {
	TenantID       string                 `json:"tenant_id"`
	Provider       telephony.ProviderName `json:"provider"`
	BackupProvider telephony.ProviderName `json:"backup_provider,omitempty"`
	ErrorCount     int                    `json:"error_count"`
	TestedAt       time.Time              `json:"tested_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

func (c Config) Summary() Summary {
	return Summary{
		TenantID:       c.TenantID,
		Provider:       c.Provider,
		BackupProvider: c.BackupProvider,
		ErrorCount:     c.ErrorCount,
		TestedAt:       c.TestedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}
