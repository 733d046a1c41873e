package providers

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"callcenter-platform/internal/telephony"
	"callcenter-platform/pkg/utils"
)

// PostgresStore persists provider configs in the provider_configs table:
// one row per tenant (tenant_id primary key), replace-on-write.
//
// Assumed schema:
//   provider_configs (
//     tenant_id TEXT PRIMARY KEY,
//     provider TEXT NOT NULL,
//     credentials TEXT NOT NULL,
//     is_active BOOLEAN NOT NULL,
//     backup_provider TEXT,
//     backup_credentials TEXT,
//     failover_threshold INT NOT NULL,
//     error_count INT NOT NULL,
//     tested_at TIMESTAMPTZ,
//     created_at TIMESTAMPTZ NOT NULL,
//     updated_at TIMESTAMPTZ NOT NULL
//   )
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const configColumns = `
tenant_id, provider, credentials, is_active, backup_provider, backup_credentials,
failover_threshold, error_count, tested_at, created_at, updated_at
`

func (s *PostgresStore) GetActiveConfig(ctx context.Context, tenantID string) (Config, error) {
	const q = `
SELECT ` + configColumns + `
FROM provider_configs
WHERE tenant_id = $1 AND is_active
`
	return scanConfig(s.db.QueryRowContext(ctx, q, tenantID))
}

func (s *PostgresStore) UpsertConfig(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	const q = `
INSERT INTO provider_configs (` + configColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (tenant_id) DO UPDATE SET
  provider = EXCLUDED.provider,
  credentials = EXCLUDED.credentials,
  is_active = EXCLUDED.is_active,
  backup_provider = EXCLUDED.backup_provider,
  backup_credentials = EXCLUDED.backup_credentials,
  failover_threshold = EXCLUDED.failover_threshold,
  error_count = EXCLUDED.error_count,
  tested_at = EXCLUDED.tested_at,
  updated_at = EXCLUDED.updated_at
`
	_, err := s.db.ExecContext(ctx, q,
		cfg.TenantID,
		string(cfg.Provider),
		cfg.Credentials,
		cfg.IsActive,
		nullString(string(cfg.BackupProvider)),
		nullString(cfg.BackupCredentials),
		cfg.FailoverThreshold,
		cfg.ErrorCount,
		nullTime(cfg.TestedAt),
		cfg.CreatedAt,
		cfg.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) SwapToBackup(ctx context.Context, tenantID string, now time.Time) (Config, error) {
	var out Config
	err := utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the row so two concurrent failures cannot both promote.
		const sel = `
SELECT ` + configColumns + `
FROM provider_configs
WHERE tenant_id = $1 AND is_active
FOR UPDATE
`
		cfg, err := scanConfig(tx.QueryRowContext(ctx, sel, tenantID))
		if err != nil {
			return err
		}
		if !cfg.HasBackup() {
			return ErrNoBackup
		}

		const upd = `
UPDATE provider_configs SET
  provider = backup_provider,
  credentials = backup_credentials,
  backup_provider = NULL,
  backup_credentials = NULL,
  error_count = error_count + 1,
  updated_at = $2
WHERE tenant_id = $1
`
		if _, err := tx.ExecContext(ctx, upd, tenantID, now); err != nil {
			return err
		}

		cfg.Provider = cfg.BackupProvider
		cfg.Credentials = cfg.BackupCredentials
		cfg.BackupProvider = ""
		cfg.BackupCredentials = ""
		cfg.ErrorCount++
		cfg.UpdatedAt = now
		out = cfg
		return nil
	})
	if err != nil {
		return Config{}, err
	}
	return out, nil
}

func (s *PostgresStore) MarkTested(ctx context.Context, tenantID string, now time.Time) error {
	const q = `
UPDATE provider_configs SET tested_at = $2, error_count = 0, updated_at = $2
WHERE tenant_id = $1 AND is_active
`
	res, err := s.db.ExecContext(ctx, q, tenantID, now)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListActiveTenantIDs(ctx context.Context) ([]string, error) {
	const q = `SELECT tenant_id FROM provider_configs WHERE is_active ORDER BY tenant_id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteConfig(ctx context.Context, tenantID string) error {
	return utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const sel = `SELECT is_active FROM provider_configs WHERE tenant_id = $1 FOR UPDATE`
		var active bool
		if err := tx.QueryRowContext(ctx, sel, tenantID).Scan(&active); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if active {
			return ErrActiveConfig
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM provider_configs WHERE tenant_id = $1`, tenantID)
		return err
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (Config, error) {
	var (
		cfg         Config
		provider    string
		backupProv  sql.NullString
		backupCreds sql.NullString
		testedAt    sql.NullTime
	)
	err := row.Scan(
		&cfg.TenantID,
		&provider,
		&cfg.Credentials,
		&cfg.IsActive,
		&backupProv,
		&backupCreds,
		&cfg.FailoverThreshold,
		&cfg.ErrorCount,
		&testedAt,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Config{}, ErrNotFound
		}
		return Config{}, err
	}
	cfg.Provider = telephony.ProviderName(provider)
	cfg.BackupProvider = telephony.ProviderName(backupProv.String)
	cfg.BackupCredentials = backupCreds.String
	cfg.TestedAt = testedAt.Time
	return cfg, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
