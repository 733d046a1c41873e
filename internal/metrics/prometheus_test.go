package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func newTestSink(t *testing.T) (*PrometheusSink, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)
	return sink, reg
}

func getCounterVecValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if matchLabels(m.GetLabel(), labels) {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func getGaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if m.GetGauge() != nil {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	return 0
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; !ok || v != p.GetValue() {
			return false
		}
	}
	return true
}

func TestRouteAttempt(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.RouteAttempt("twilio", "outbound", OutcomeSuccess, 250*time.Millisecond)
	sink.RouteAttempt("twilio", "outbound", OutcomeSuccess, 100*time.Millisecond)
	sink.RouteAttempt("exotel", "inbound", OutcomeFailedOver, time.Second)

	got := getCounterVecValue(t, reg, "telephony_route_attempts_total", map[string]string{
		"provider": "twilio", "direction": "outbound", "outcome": "success",
	})
	if got != 2 {
		t.Errorf("expected 2 twilio successes, got %v", got)
	}

	got = getCounterVecValue(t, reg, "telephony_route_attempts_total", map[string]string{
		"provider": "exotel", "direction": "inbound", "outcome": "failed_over",
	})
	if got != 1 {
		t.Errorf("expected 1 exotel failed_over, got %v", got)
	}
}

func TestFailoverTriggered(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.FailoverTriggered(ReasonCallFailure)
	sink.FailoverTriggered(ReasonHealthCheck)
	sink.FailoverTriggered(ReasonHealthCheck)

	got := getCounterVecValue(t, reg, "telephony_failovers_total", map[string]string{"reason": "health_check"})
	if got != 2 {
		t.Errorf("expected 2 health_check failovers, got %v", got)
	}
}

func TestBreakerTripped(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.BreakerTripped("twilio")
	sink.BreakerTripped("twilio")
	sink.BreakerTripped("exotel")

	got := getCounterVecValue(t, reg, "telephony_breaker_trips_total", map[string]string{"provider": "twilio"})
	if got != 2 {
		t.Errorf("expected 2 twilio trips, got %v", got)
	}
	got = getCounterVecValue(t, reg, "telephony_breaker_trips_total", map[string]string{"provider": "exotel"})
	if got != 1 {
		t.Errorf("expected 1 exotel trip, got %v", got)
	}
}

func TestHealthSweepCompleted(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.HealthSweepCompleted(2*time.Second, 12, 3)

	if got := getGaugeValue(t, reg, "telephony_health_sweep_tenants_checked"); got != 12 {
		t.Errorf("expected 12 tenants checked, got %v", got)
	}
	if got := getGaugeValue(t, reg, "telephony_health_sweep_unhealthy_tenants"); got != 3 {
		t.Errorf("expected 3 unhealthy tenants, got %v", got)
	}
}

func TestDuplicateRegistrationDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewPrometheusSink(reg)
	// Second sink against the same registry logs warnings but stays usable.
	sink := NewPrometheusSink(reg)
	sink.RouteAttempt("twilio", "outbound", OutcomeSuccess, time.Millisecond)
	sink.BreakerSkip("twilio")
	sink.HealthCheckError()
}
