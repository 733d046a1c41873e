package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Router metrics
	routeAttemptsTotal  *prometheus.CounterVec
	routeDuration       prometheus.Histogram
	failoversTotal      *prometheus.CounterVec
	breakerTripsTotal   *prometheus.CounterVec
	breakerSkipsTotal   *prometheus.CounterVec

	// Health checker metrics
	sweepDuration          prometheus.Histogram
	sweepTenantsChecked    prometheus.Gauge
	sweepUnhealthyTenants  prometheus.Gauge
	healthCheckErrorsTotal prometheus.Counter
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initRouterMetrics(reg)
	s.initHealthMetrics(reg)
	return s
}

func (s *PrometheusSink) initRouterMetrics(reg prometheus.Registerer) {
	s.routeAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telephony_route_attempts_total",
		Help: "Total number of routed call attempts by provider, direction and outcome.",
	}, []string{"provider", "direction", "outcome"})

	s.routeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "telephony_route_duration_seconds",
		Help:    "End-to-end latency of routing one call, including any failover retry.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	s.failoversTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telephony_failovers_total",
		Help: "Total number of backup promotions by trigger reason.",
	}, []string{"reason"})

	s.breakerTripsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telephony_breaker_trips_total",
		Help: "Total number of circuit breaker trips to OPEN by provider.",
	}, []string{"provider"})

	s.breakerSkipsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telephony_breaker_skips_total",
		Help: "Total number of call attempts skipped because the breaker was open.",
	}, []string{"provider"})

	s.register(reg, s.routeAttemptsTotal, "telephony_route_attempts_total")
	s.register(reg, s.routeDuration, "telephony_route_duration_seconds")
	s.register(reg, s.failoversTotal, "telephony_failovers_total")
	s.register(reg, s.breakerTripsTotal, "telephony_breaker_trips_total")
	s.register(reg, s.breakerSkipsTotal, "telephony_breaker_skips_total")
}

func (s *PrometheusSink) initHealthMetrics(reg prometheus.Registerer) {
	s.sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "telephony_health_sweep_duration_seconds",
		Help:    "Duration of one full health-check sweep across active tenants.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})
	s.sweepTenantsChecked = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "telephony_health_sweep_tenants_checked",
		Help: "Number of tenants checked in the latest health sweep.",
	})
	s.sweepUnhealthyTenants = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "telephony_health_sweep_unhealthy_tenants",
		Help: "Number of tenants whose primary provider failed the latest sweep.",
	})
	s.healthCheckErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telephony_health_check_errors_total",
		Help: "Total number of per-tenant health check errors (config load, decrypt).",
	})

	s.register(reg, s.sweepDuration, "telephony_health_sweep_duration_seconds")
	s.register(reg, s.sweepTenantsChecked, "telephony_health_sweep_tenants_checked")
	s.register(reg, s.sweepUnhealthyTenants, "telephony_health_sweep_unhealthy_tenants")
	s.register(reg, s.healthCheckErrorsTotal, "telephony_health_check_errors_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Router metrics implementation

func (s *PrometheusSink) RouteAttempt(provider, direction, outcome string, duration time.Duration) {
	s.routeAttemptsTotal.WithLabelValues(provider, direction, outcome).Inc()
	s.routeDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) FailoverTriggered(reason string) {
	s.failoversTotal.WithLabelValues(reason).Inc()
}

func (s *PrometheusSink) BreakerTripped(provider string) {
	s.breakerTripsTotal.WithLabelValues(provider).Inc()
}

func (s *PrometheusSink) BreakerSkip(provider string) {
	s.breakerSkipsTotal.WithLabelValues(provider).Inc()
}

// Health checker metrics implementation

func (s *PrometheusSink) HealthSweepCompleted(duration time.Duration, tenantsChecked, unhealthy int) {
	s.sweepDuration.Observe(duration.Seconds())
	s.sweepTenantsChecked.Set(float64(tenantsChecked))
	s.sweepUnhealthyTenants.Set(float64(unhealthy))
}

func (s *PrometheusSink) HealthCheckError() {
	s.healthCheckErrorsTotal.Inc()
}
