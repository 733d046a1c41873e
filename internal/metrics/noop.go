package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) RouteAttempt(provider, direction, outcome string, duration time.Duration)  {}
func (n *NoopSink) FailoverTriggered(reason string)                                           {}
func (n *NoopSink) BreakerTripped(provider string)                                            {}
func (n *NoopSink) BreakerSkip(provider string)                                               {}
func (n *NoopSink) HealthSweepCompleted(duration time.Duration, tenantsChecked, unhealthy int) {
}
func (n *NoopSink) HealthCheckError() {}
