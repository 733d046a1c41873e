package routing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"callcenter-platform/internal/audit"
	"callcenter-platform/internal/circuitbreaker"
	"callcenter-platform/internal/metrics"
	"callcenter-platform/internal/providers"
	"callcenter-platform/internal/secrets"
	"callcenter-platform/internal/telephony"
)

// Router is the single entry point for telephony traffic. It resolves the
// tenant's active provider, decrypts credentials at call time, consults the
// circuit breaker, and on primary failure performs a one-shot failover to the
// backup followed by exactly one retry.
//
// Timeouts are owned here: adapters receive a ctx already bounded by
// TestTimeout (connectivity tests, health checks) or CallTimeout (real calls).
type Router struct {
	providers *telephony.Registry
	store     providers.Store
	secrets   *secrets.Store
	breaker   circuitbreaker.Breaker
	audit     *audit.Service
	metrics   metrics.Sink
	log       *slog.Logger

	testTimeout time.Duration
	callTimeout time.Duration

	clock func() time.Time
}

type RouterOptions struct {
	Providers *telephony.Registry
	Store     providers.Store
	Secrets   *secrets.Store
	Breaker   circuitbreaker.Breaker
	Audit     *audit.Service
	Metrics   metrics.Sink
	Logger    *slog.Logger

	TestTimeout time.Duration
	CallTimeout time.Duration
}

func NewRouter(opts RouterOptions) *Router {
	r := &Router{
		providers:   opts.Providers,
		store:       opts.Store,
		secrets:     opts.Secrets,
		breaker:     opts.Breaker,
		audit:       opts.Audit,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		testTimeout: opts.TestTimeout,
		callTimeout: opts.CallTimeout,
		clock:       time.Now,
	}
	if r.metrics == nil {
		r.metrics = metrics.NewNoopSink()
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.testTimeout <= 0 {
		r.testTimeout = 10 * time.Second
	}
	if r.callTimeout <= 0 {
		r.callTimeout = 30 * time.Second
	}
	return r
}

// errBreakerOpen marks an attempt that was skipped because the breaker
// disallowed it. It never reaches the adapter and never records a failure.
var errBreakerOpen = errors.New("routing: circuit breaker open")

// SelectProviderRequest carries plaintext credentials exactly once: from the
// API boundary into Encrypt. It must never be logged or persisted as-is.
type SelectProviderRequest struct {
	TenantID string

	Provider    string
	Credentials map[string]string

	BackupProvider    string
	BackupCredentials map[string]string

	FailoverThreshold int
}

// SelectProvider verifies credentials against the live vendor, then persists
// the config. Nothing is stored when verification fails, so a tenant can never
// end up configured with credentials that were rejected.
func (r *Router) SelectProvider(ctx context.Context, req SelectProviderRequest) (providers.Summary, error) {
	primary, err := telephony.ParseProviderName(req.Provider)
	if err != nil {
		return providers.Summary{}, err
	}

	var backup telephony.ProviderName
	if req.BackupProvider != "" {
		backup, err = telephony.ParseProviderName(req.BackupProvider)
		if err != nil {
			return providers.Summary{}, err
		}
	}

	if _, err := r.testCredentials(ctx, primary, req.Credentials); err != nil {
		return providers.Summary{}, err
	}
	if backup != "" {
		if _, err := r.testCredentials(ctx, backup, req.BackupCredentials); err != nil {
			return providers.Summary{}, err
		}
	}

	blob, err := r.secrets.Encrypt(req.Credentials)
	if err != nil {
		return providers.Summary{}, err
	}
	var backupBlob string
	if backup != "" {
		backupBlob, err = r.secrets.Encrypt(req.BackupCredentials)
		if err != nil {
			return providers.Summary{}, err
		}
	}

	threshold := req.FailoverThreshold
	if threshold <= 0 {
		threshold = 3
	}

	now := r.clock().UTC()
	cfg := providers.Config{
		TenantID:          req.TenantID,
		Provider:          primary,
		Credentials:       blob,
		IsActive:          true,
		BackupProvider:    backup,
		BackupCredentials: backupBlob,
		FailoverThreshold: threshold,
		TestedAt:          now,
		UpdatedAt:         now,
	}
	if err := r.store.UpsertConfig(ctx, cfg); err != nil {
		return providers.Summary{}, err
	}

	if err := r.audit.LogProviderSelected(ctx, req.TenantID, actorUserID(ctx), actorRole(ctx), ClientIPFromContext(ctx), primary, backup); err != nil {
		r.log.Warn("audit append failed", "tenant_id", req.TenantID, "error", err)
	}

	r.log.Info("provider selected",
		"tenant_id", req.TenantID,
		"provider", primary,
		"backup_provider", string(backup),
	)
	return cfg.Summary(), nil
}

func (r *Router) testCredentials(ctx context.Context, name telephony.ProviderName, creds map[string]string) (telephony.AccountMetadata, error) {
	p, err := r.providers.Get(name)
	if err != nil {
		return telephony.AccountMetadata{}, err
	}
	tctx, cancel := context.WithTimeout(ctx, r.testTimeout)
	defer cancel()
	return p.TestConnection(tctx, telephony.Credentials(creds))
}

// RouteInbound resolves the tenant's provider and normalizes the webhook
// payload. A primary failure triggers a one-shot failover and one retry.
func (r *Router) RouteInbound(ctx context.Context, tenantID string, payload telephony.WebhookPayload) (telephony.InboundCall, error) {
	var call telephony.InboundCall
	err := r.routeCall(ctx, tenantID, telephony.DirectionInbound, func(ctx context.Context, p telephony.Provider, creds telephony.Credentials) (string, error) {
		c, err := p.HandleInboundCall(ctx, payload, creds)
		if err != nil {
			return "", err
		}
		call = c
		return c.ExternalCallID, nil
	})
	if err != nil {
		return telephony.InboundCall{}, err
	}
	return call, nil
}

// RouteOutbound places an outbound call through the tenant's provider,
// failing over once if the primary attempt fails.
func (r *Router) RouteOutbound(ctx context.Context, tenantID string, req telephony.OutboundCallRequest) (telephony.OutboundCall, error) {
	if err := req.Validate(); err != nil {
		return telephony.OutboundCall{}, err
	}
	var call telephony.OutboundCall
	err := r.routeCall(ctx, tenantID, telephony.DirectionOutbound, func(ctx context.Context, p telephony.Provider, creds telephony.Credentials) (string, error) {
		c, err := p.InitiateOutboundCall(ctx, req, creds)
		if err != nil {
			return "", err
		}
		call = c
		return c.ExternalCallID, nil
	})
	if err != nil {
		return telephony.OutboundCall{}, err
	}
	return call, nil
}

// EndCall hangs up a call on the tenant's current provider. No failover:
// promoting a backup cannot help with a call that lives on the old vendor.
func (r *Router) EndCall(ctx context.Context, tenantID, externalCallID string) error {
	p, creds, err := r.resolve(ctx, tenantID)
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return p.EndCall(cctx, externalCallID, creds)
}

// GetCallDetails fetches call status from the tenant's current provider.
func (r *Router) GetCallDetails(ctx context.Context, tenantID, externalCallID string) (telephony.CallDetail, error) {
	p, creds, err := r.resolve(ctx, tenantID)
	if err != nil {
		return telephony.CallDetail{}, err
	}
	cctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return p.GetCallDetails(cctx, externalCallID, creds)
}

// ProviderStatus is the live view of a tenant's telephony setup.
type ProviderStatus struct {
	providers.Summary
	Healthy      bool                 `json:"healthy"`
	BreakerState circuitbreaker.State `json:"breaker_state"`
}

// GetProviderStatus runs a live connectivity check against the tenant's
// primary provider and reports the breaker state alongside the config summary.
func (r *Router) GetProviderStatus(ctx context.Context, tenantID string) (ProviderStatus, error) {
	cfg, err := r.store.GetActiveConfig(ctx, tenantID)
	if err != nil {
		if errors.Is(err, providers.ErrNotFound) {
			return ProviderStatus{}, &NotConfiguredError{TenantID: tenantID}
		}
		return ProviderStatus{}, err
	}

	status := ProviderStatus{Summary: cfg.Summary()}

	state, err := r.breaker.State(ctx, tenantID, string(cfg.Provider))
	if err != nil {
		r.log.Warn("breaker state lookup failed", "tenant_id", tenantID, "error", err)
		state = circuitbreaker.StateClosed
	}
	status.BreakerState = state

	p, err := r.providers.Get(cfg.Provider)
	if err != nil {
		return ProviderStatus{}, err
	}
	creds, err := r.secrets.Decrypt(cfg.Credentials)
	if err != nil {
		// A blob we cannot open means the provider is effectively down for
		// this tenant. Report unhealthy instead of erroring the status call.
		r.log.Error("credential decryption failed", "tenant_id", tenantID, "provider", cfg.Provider)
		return status, nil
	}

	tctx, cancel := context.WithTimeout(ctx, r.testTimeout)
	defer cancel()
	status.Healthy = p.CheckHealth(tctx, creds)
	return status, nil
}

// TriggerManualFailover promotes the tenant's backup on operator request.
func (r *Router) TriggerManualFailover(ctx context.Context, tenantID, reason string) (providers.Summary, error) {
	cfg, err := r.store.GetActiveConfig(ctx, tenantID)
	if err != nil {
		if errors.Is(err, providers.ErrNotFound) {
			return providers.Summary{}, &NotConfiguredError{TenantID: tenantID}
		}
		return providers.Summary{}, err
	}

	swapped, err := r.store.SwapToBackup(ctx, tenantID, r.clock().UTC())
	if err != nil {
		if errors.Is(err, providers.ErrNoBackup) {
			return providers.Summary{}, &NoBackupAvailableError{TenantID: tenantID}
		}
		return providers.Summary{}, err
	}

	if reason == "" {
		reason = "manual failover requested"
	}
	if err := r.audit.LogFailover(ctx, tenantID, true, actorUserID(ctx), actorRole(ctx), ClientIPFromContext(ctx), cfg.Provider, swapped.Provider, reason); err != nil {
		r.log.Warn("audit append failed", "tenant_id", tenantID, "error", err)
	}
	r.metrics.FailoverTriggered(metrics.ReasonManual)

	r.log.Info("manual failover",
		"tenant_id", tenantID,
		"from_provider", cfg.Provider,
		"to_provider", swapped.Provider,
	)
	return swapped.Summary(), nil
}

// attemptFn runs one provider call and returns the external call id.
type attemptFn func(ctx context.Context, p telephony.Provider, creds telephony.Credentials) (string, error)

// routeCall is the shared primary-then-failover flow behind RouteInbound and
// RouteOutbound.
//
// Every failed primary attempt counts as a breaker failure and, when a backup
// is configured, triggers the one-shot failover. The only exception is a
// breaker-open skip: the call was never attempted, so no failure is recorded,
// but the failover still runs. Terminal failures surface as RoutingFailedError
// wrapping the last cause.
//
// At most one failover happens, followed by exactly one retry against the
// promoted backup.
func (r *Router) routeCall(ctx context.Context, tenantID string, direction telephony.Direction, fn attemptFn) error {
	start := r.clock()

	cfg, err := r.store.GetActiveConfig(ctx, tenantID)
	if err != nil {
		if errors.Is(err, providers.ErrNotFound) {
			return &NotConfiguredError{TenantID: tenantID}
		}
		return err
	}

	callID, primaryErr := r.attempt(ctx, tenantID, cfg.Provider, cfg.Credentials, fn)
	if primaryErr == nil {
		r.recordAttempt(ctx, tenantID, cfg.Provider, direction, callID, audit.OutcomeSuccess, "")
		r.metrics.RouteAttempt(string(cfg.Provider), string(direction), metrics.OutcomeSuccess, r.clock().Sub(start))
		return nil
	}

	r.log.Warn("primary provider attempt failed",
		"tenant_id", tenantID,
		"provider", cfg.Provider,
		"direction", direction,
		"error", primaryErr,
	)

	if !cfg.HasBackup() {
		r.recordAttempt(ctx, tenantID, cfg.Provider, direction, "", audit.OutcomeFailure, primaryErr.Error())
		r.metrics.RouteAttempt(string(cfg.Provider), string(direction), metrics.OutcomeFailure, r.clock().Sub(start))
		return &RoutingFailedError{TenantID: tenantID, Provider: cfg.Provider, Err: primaryErr}
	}

	swapped, err := r.store.SwapToBackup(ctx, tenantID, r.clock().UTC())
	if err != nil {
		r.recordAttempt(ctx, tenantID, cfg.Provider, direction, "", audit.OutcomeFailure, primaryErr.Error())
		return &RoutingFailedError{TenantID: tenantID, Provider: cfg.Provider, Err: err}
	}

	if err := r.audit.LogFailover(ctx, tenantID, false, "", "", ClientIPFromContext(ctx), cfg.Provider, swapped.Provider, primaryErr.Error()); err != nil {
		r.log.Warn("audit append failed", "tenant_id", tenantID, "error", err)
	}
	r.metrics.FailoverTriggered(metrics.ReasonCallFailure)
	r.log.Warn("failover: backup promoted",
		"tenant_id", tenantID,
		"from_provider", cfg.Provider,
		"to_provider", swapped.Provider,
	)

	callID, retryErr := r.attempt(ctx, tenantID, swapped.Provider, swapped.Credentials, fn)
	if retryErr != nil {
		r.recordAttempt(ctx, tenantID, swapped.Provider, direction, "", audit.OutcomeFailure, retryErr.Error())
		r.metrics.RouteAttempt(string(swapped.Provider), string(direction), metrics.OutcomeFailure, r.clock().Sub(start))
		return &RoutingFailedError{TenantID: tenantID, Provider: swapped.Provider, Err: retryErr}
	}

	r.recordAttempt(ctx, tenantID, swapped.Provider, direction, callID, audit.OutcomeFailedOver, "")
	r.metrics.RouteAttempt(string(swapped.Provider), string(direction), metrics.OutcomeFailedOver, r.clock().Sub(start))
	return nil
}

// attempt runs one gated provider call: breaker check, decrypt, adapter call
// under CallTimeout, breaker bookkeeping.
func (r *Router) attempt(ctx context.Context, tenantID string, name telephony.ProviderName, blob string, fn attemptFn) (string, error) {
	allowed, err := r.breaker.Allow(ctx, tenantID, string(name))
	if err != nil {
		r.log.Warn("breaker check failed, allowing call", "tenant_id", tenantID, "provider", name, "error", err)
		allowed = true
	}
	if !allowed {
		r.metrics.BreakerSkip(string(name))
		return "", errBreakerOpen
	}

	p, err := r.providers.Get(name)
	if err != nil {
		return "", err
	}

	creds, err := r.secrets.Decrypt(blob)
	if err != nil {
		r.log.Error("credential decryption failed", "tenant_id", tenantID, "provider", name)
		r.recordFailure(ctx, tenantID, name)
		return "", err
	}

	cctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	callID, err := fn(cctx, p, telephony.Credentials(creds))
	if err != nil {
		// Any failed attempt counts against the pair, rejections included:
		// auth failures and balance exhaustion are provider-specific and a
		// backup can fix them.
		r.recordFailure(ctx, tenantID, name)
		return "", err
	}

	r.recordSuccess(ctx, tenantID, name)
	return callID, nil
}

func (r *Router) recordSuccess(ctx context.Context, tenantID string, name telephony.ProviderName) {
	if err := r.breaker.RecordSuccess(ctx, tenantID, string(name)); err != nil {
		r.log.Warn("breaker record success failed", "tenant_id", tenantID, "provider", name, "error", err)
	}
}

func (r *Router) recordFailure(ctx context.Context, tenantID string, name telephony.ProviderName) {
	if err := r.breaker.RecordFailure(ctx, tenantID, string(name)); err != nil {
		r.log.Warn("breaker record failure failed", "tenant_id", tenantID, "provider", name, "error", err)
		return
	}
	// recordFailure only runs after an admitted attempt, so the pair was
	// CLOSED or HALF_OPEN going in; OPEN afterwards is always a fresh trip.
	state, err := r.breaker.State(ctx, tenantID, string(name))
	if err == nil && state == circuitbreaker.StateOpen {
		r.metrics.BreakerTripped(string(name))
		r.log.Warn("circuit breaker tripped", "tenant_id", tenantID, "provider", name)
	}
}

func (r *Router) recordAttempt(ctx context.Context, tenantID string, name telephony.ProviderName, direction telephony.Direction, callID string, outcome audit.Outcome, reason string) {
	err := r.audit.AppendCallAttempt(ctx, audit.CallAttempt{
		TenantID:       tenantID,
		Provider:       name,
		Direction:      direction,
		ExternalCallID: callID,
		Outcome:        outcome,
		FailureReason:  reason,
	})
	if err != nil {
		r.log.Warn("call attempt append failed", "tenant_id", tenantID, "error", err)
	}
}

func (r *Router) resolve(ctx context.Context, tenantID string) (telephony.Provider, telephony.Credentials, error) {
	cfg, err := r.store.GetActiveConfig(ctx, tenantID)
	if err != nil {
		if errors.Is(err, providers.ErrNotFound) {
			return nil, nil, &NotConfiguredError{TenantID: tenantID}
		}
		return nil, nil, err
	}
	p, err := r.providers.Get(cfg.Provider)
	if err != nil {
		return nil, nil, err
	}
	creds, err := r.secrets.Decrypt(cfg.Credentials)
	if err != nil {
		return nil, nil, err
	}
	return p, telephony.Credentials(creds), nil
}
