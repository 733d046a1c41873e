package routing

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"callcenter-platform/internal/audit"
	"callcenter-platform/internal/metrics"
	"callcenter-platform/internal/providers"
	"callcenter-platform/internal/secrets"
	"callcenter-platform/internal/telephony"
)

// HealthChecker periodically verifies every active tenant's primary provider
// and proactively fails over tenants whose provider stays unhealthy for
// FailoverThreshold consecutive sweeps.
//
// One tenant's failure (bad config, decrypt error, vendor outage, panic in an
// adapter) never stops the sweep for the others.
type HealthChecker struct {
	providers *telephony.Registry
	store     providers.Store
	secrets   *secrets.Store
	audit     *audit.Service
	metrics   metrics.Sink
	log       *slog.Logger

	interval    time.Duration
	concurrency int
	testTimeout time.Duration

	clock func() time.Time

	mu        sync.Mutex
	unhealthy map[string]int // tenantID -> consecutive failed sweeps
}

type HealthCheckerOptions struct {
	Providers *telephony.Registry
	Store     providers.Store
	Secrets   *secrets.Store
	Audit     *audit.Service
	Metrics   metrics.Sink
	Logger    *slog.Logger

	Interval    time.Duration
	Concurrency int
	TestTimeout time.Duration
}

func NewHealthChecker(opts HealthCheckerOptions) *HealthChecker {
	h := &HealthChecker{
		providers:   opts.Providers,
		store:       opts.Store,
		secrets:     opts.Secrets,
		audit:       opts.Audit,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		interval:    opts.Interval,
		concurrency: opts.Concurrency,
		testTimeout: opts.TestTimeout,
		clock:       time.Now,
		unhealthy:   make(map[string]int),
	}
	if h.metrics == nil {
		h.metrics = metrics.NewNoopSink()
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	if h.interval <= 0 {
		h.interval = 60 * time.Second
	}
	if h.concurrency <= 0 {
		h.concurrency = 4
	}
	if h.testTimeout <= 0 {
		h.testTimeout = 10 * time.Second
	}
	return h
}

// Run sweeps on a fixed interval until ctx is cancelled. Call it in its own
// goroutine.
func (h *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.log.Info("health checker started", "interval", h.interval, "concurrency", h.concurrency)
	for {
		select {
		case <-ctx.Done():
			h.log.Info("health checker stopped")
			return
		case <-ticker.C:
			h.Sweep(ctx)
		}
	}
}

// Sweep checks every active tenant once, with bounded fan-out.
func (h *HealthChecker) Sweep(ctx context.Context) {
	start := h.clock()

	tenantIDs, err := h.store.ListActiveTenantIDs(ctx)
	if err != nil {
		h.log.Error("health sweep: listing tenants failed", "error", err)
		h.metrics.HealthCheckError()
		return
	}

	sem := make(chan struct{}, h.concurrency)
	var wg sync.WaitGroup
	var unhealthyCount int64
	var mu sync.Mutex

	for _, tenantID := range tenantIDs {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(tenantID string) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if rec := recover(); rec != nil {
					h.log.Error("health check panicked", "tenant_id", tenantID, "panic", rec)
					h.metrics.HealthCheckError()
				}
			}()

			healthy := h.checkTenant(ctx, tenantID)
			if !healthy {
				mu.Lock()
				unhealthyCount++
				mu.Unlock()
			}
		}(tenantID)
	}
	wg.Wait()

	h.metrics.HealthSweepCompleted(h.clock().Sub(start), len(tenantIDs), int(unhealthyCount))
	h.log.Debug("health sweep completed",
		"tenants_checked", len(tenantIDs),
		"unhealthy", unhealthyCount,
		"duration", h.clock().Sub(start),
	)
}

// checkTenant verifies one tenant's primary provider and reports whether it
// was healthy. Threshold bookkeeping and proactive failover happen here.
func (h *HealthChecker) checkTenant(ctx context.Context, tenantID string) bool {
	cfg, err := h.store.GetActiveConfig(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, providers.ErrNotFound) {
			h.log.Error("health check: config load failed", "tenant_id", tenantID, "error", err)
			h.metrics.HealthCheckError()
		}
		// A tenant deactivated mid-sweep is not unhealthy.
		h.resetCounter(tenantID)
		return true
	}

	p, err := h.providers.Get(cfg.Provider)
	if err != nil {
		h.log.Error("health check: unknown provider in config", "tenant_id", tenantID, "provider", cfg.Provider)
		h.metrics.HealthCheckError()
		return h.recordUnhealthy(ctx, tenantID, cfg, "provider not registered")
	}

	creds, err := h.secrets.Decrypt(cfg.Credentials)
	if err != nil {
		h.log.Error("health check: credential decryption failed", "tenant_id", tenantID, "provider", cfg.Provider)
		h.metrics.HealthCheckError()
		return h.recordUnhealthy(ctx, tenantID, cfg, "credential decryption failed")
	}

	tctx, cancel := context.WithTimeout(ctx, h.testTimeout)
	defer cancel()

	if !p.CheckHealth(tctx, telephony.Credentials(creds)) {
		return h.recordUnhealthy(ctx, tenantID, cfg, "health check failed")
	}

	h.resetCounter(tenantID)
	if err := h.store.MarkTested(ctx, tenantID, h.clock().UTC()); err != nil {
		h.log.Warn("health check: mark tested failed", "tenant_id", tenantID, "error", err)
	}
	return true
}

// recordUnhealthy bumps the tenant's consecutive-failure counter and promotes
// the backup once the configured threshold is reached. Always returns false.
func (h *HealthChecker) recordUnhealthy(ctx context.Context, tenantID string, cfg providers.Config, reason string) bool {
	h.mu.Lock()
	h.unhealthy[tenantID]++
	failures := h.unhealthy[tenantID]
	h.mu.Unlock()

	h.log.Warn("provider unhealthy",
		"tenant_id", tenantID,
		"provider", cfg.Provider,
		"consecutive_failures", failures,
		"threshold", cfg.FailoverThreshold,
		"reason", reason,
	)

	if failures < cfg.FailoverThreshold {
		return false
	}
	if !cfg.HasBackup() {
		// Nothing to promote; keep counting so the condition stays visible
		// in logs each sweep.
		return false
	}

	swapped, err := h.store.SwapToBackup(ctx, tenantID, h.clock().UTC())
	if err != nil {
		h.log.Error("proactive failover failed", "tenant_id", tenantID, "error", err)
		return false
	}
	h.resetCounter(tenantID)

	if err := h.audit.LogFailover(ctx, tenantID, false, "", "", "", cfg.Provider, swapped.Provider, reason); err != nil {
		h.log.Warn("audit append failed", "tenant_id", tenantID, "error", err)
	}
	h.metrics.FailoverTriggered(metrics.ReasonHealthCheck)
	h.log.Warn("proactive failover: backup promoted",
		"tenant_id", tenantID,
		"from_provider", cfg.Provider,
		"to_provider", swapped.Provider,
	)
	return false
}

func (h *HealthChecker) resetCounter(tenantID string) {
	h.mu.Lock()
	delete(h.unhealthy, tenantID)
	h.mu.Unlock()
}
