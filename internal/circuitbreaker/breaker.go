// Package circuitbreaker tracks consecutive vendor failures per
// (tenant, provider) pair and gates whether calls may be attempted.
//
// State machine:
//   CLOSED    calls allowed; failures counted, threshold trips to OPEN
//   OPEN      calls disallowed until resetTimeout elapses, then the next
//             Allow() lazily promotes to HALF_OPEN (no background timer)
//   HALF_OPEN exactly one trial call allowed; success closes, failure reopens
package circuitbreaker

import (
	"context"
	"time"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Settings are per-deployment, not per-tenant.
type Settings struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

func (s Settings) withDefaults() Settings {
	out := s
	if out.FailureThreshold <= 0 {
		out.FailureThreshold = 5
	}
	if out.ResetTimeout <= 0 {
		out.ResetTimeout = 60 * time.Second
	}
	return out
}

// Breaker is the failure-gating contract used by the router. Implementations:
// Memory (process-local) and Redis (shared across replicas).
//
// The ctx parameter exists for the Redis backend; the memory backend ignores it.
type Breaker interface {
	// Allow reports whether a call against the pair may be attempted.
	// It may transition OPEN -> HALF_OPEN as a side effect.
	Allow(ctx context.Context, tenantID string, provider string) (bool, error)

	RecordSuccess(ctx context.Context, tenantID string, provider string) error
	RecordFailure(ctx context.Context, tenantID string, provider string) error

	State(ctx context.Context, tenantID string, provider string) (State, error)
}

func pairKey(tenantID, provider string) string {
	return tenantID + ":" + provider
}
