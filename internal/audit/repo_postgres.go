package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends to audit_events and call_attempts. Both tables are
// INSERT-only; retention/export is an external collaborator's concern.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, tenant_id, type, actor_user_id, actor_role, ip_address,
  from_provider, to_provider, message, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.TenantID,
		string(e.Type),
		e.ActorUserID,
		e.ActorRole,
		e.IPAddress,
		string(e.FromProvider),
		string(e.ToProvider),
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) AppendCallAttempt(ctx context.Context, a CallAttempt) error {
	const q = `
INSERT INTO call_attempts (
  id, tenant_id, provider, direction, external_call_id, outcome, failure_reason, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8
)
`
	_, err := r.db.ExecContext(ctx, q,
		a.ID,
		a.TenantID,
		string(a.Provider),
		string(a.Direction),
		a.ExternalCallID,
		string(a.Outcome),
		a.FailureReason,
		a.CreatedAt,
	)
	return err
}
