package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Router metrics
	RouteAttempt(provider, direction, outcome string, duration time.Duration)
	FailoverTriggered(reason string)
	BreakerTripped(provider string)
	BreakerSkip(provider string)

	// Health checker metrics
	HealthSweepCompleted(duration time.Duration, tenantsChecked, unhealthy int)
	HealthCheckError()
}

// Outcome constants for RouteAttempt metric.
const (
	OutcomeSuccess    = "success"
	OutcomeFailure    = "failure"
	OutcomeFailedOver = "failed_over"
)

// Reason constants for FailoverTriggered metric.
const (
	ReasonCallFailure = "call_failure"
	ReasonHealthCheck = "health_check"
	ReasonManual      = "manual"
)
