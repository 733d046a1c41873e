package audit

import (
	"time"

	"callcenter-platform/internal/telephony"
)

// Event is an immutable, append-only audit log record for routing decisions
// and provider administration.
//
// Invariants:
// - Events are never updated or deleted.
// - tenant_id is required for tenancy isolation.
// - actor and ip capture are best-effort; do not block routing on audit failures.
// - Credential values never appear here, at any log level.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type Event struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event (if applicable).
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// IPAddress should capture the original client IP when available.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// FromProvider/ToProvider record provider transitions (failover, selection).
	FromProvider telephony.ProviderName `json:"from_provider,omitempty" db:"from_provider"`
	ToProvider   telephony.ProviderName `json:"to_provider,omitempty" db:"to_provider"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeProviderSelected EventType = "provider_selected"
	EventTypeFailover         EventType = "failover"
	EventTypeManualFailover   EventType = "manual_failover"
)

// CallAttempt is the append-only record of one routing decision. It is
// consumed by analytics; this subsystem never mutates or deletes it.
type CallAttempt struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	Provider  telephony.ProviderName `json:"provider" db:"provider"`
	Direction telephony.Direction    `json:"direction" db:"direction"`

	ExternalCallID string `json:"external_call_id,omitempty" db:"external_call_id"`

	Outcome       Outcome `json:"outcome" db:"outcome"`
	FailureReason string  `json:"failure_reason,omitempty" db:"failure_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Outcome of a routing decision. failed_over means the call ultimately
// succeeded, but only after the backup provider was promoted.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeFailure    Outcome = "failure"
	OutcomeFailedOver Outcome = "failed_over"
)
