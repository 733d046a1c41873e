package routing

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"callcenter-platform/internal/audit"
	"callcenter-platform/internal/circuitbreaker"
	"callcenter-platform/internal/metrics"
	"callcenter-platform/internal/providers"
	"callcenter-platform/internal/secrets"
	"callcenter-platform/internal/telephony"
)

// stubProvider is a scriptable adapter for router tests. Function fields
// default to success when nil.
type stubProvider struct {
	name telephony.ProviderName

	testFn     func() (telephony.AccountMetadata, error)
	outboundFn func() (telephony.OutboundCall, error)
	inboundFn  func() (telephony.InboundCall, error)
	healthFn   func(creds telephony.Credentials) bool
	healthy    bool

	mu            sync.Mutex
	testCalls     int
	outboundCalls int
	inboundCalls  int
}

func (s *stubProvider) Name() telephony.ProviderName { return s.name }

func (s *stubProvider) TestConnection(ctx context.Context, creds telephony.Credentials) (telephony.AccountMetadata, error) {
	s.mu.Lock()
	s.testCalls++
	s.mu.Unlock()
	if s.testFn != nil {
		return s.testFn()
	}
	return telephony.AccountMetadata{AccountID: "acct-" + string(s.name)}, nil
}

func (s *stubProvider) HandleInboundCall(ctx context.Context, payload telephony.WebhookPayload, creds telephony.Credentials) (telephony.InboundCall, error) {
	s.mu.Lock()
	s.inboundCalls++
	s.mu.Unlock()
	if s.inboundFn != nil {
		return s.inboundFn()
	}
	return telephony.InboundCall{ExternalCallID: "in-" + string(s.name), Provider: s.name, Direction: telephony.DirectionInbound}, nil
}

func (s *stubProvider) InitiateOutboundCall(ctx context.Context, req telephony.OutboundCallRequest, creds telephony.Credentials) (telephony.OutboundCall, error) {
	s.mu.Lock()
	s.outboundCalls++
	s.mu.Unlock()
	if s.outboundFn != nil {
		return s.outboundFn()
	}
	return telephony.OutboundCall{ExternalCallID: "out-" + string(s.name), Status: "queued"}, nil
}

func (s *stubProvider) EndCall(ctx context.Context, externalCallID string, creds telephony.Credentials) error {
	return nil
}

func (s *stubProvider) GetCallDetails(ctx context.Context, externalCallID string, creds telephony.Credentials) (telephony.CallDetail, error) {
	return telephony.CallDetail{Status: "completed"}, nil
}

func (s *stubProvider) CheckHealth(ctx context.Context, creds telephony.Credentials) bool {
	if s.healthFn != nil {
		return s.healthFn(creds)
	}
	return s.healthy
}

// trackingSink records breaker trips; everything else is a no-op.
type trackingSink struct {
	metrics.NoopSink

	mu    sync.Mutex
	trips []string
}

func (s *trackingSink) BreakerTripped(provider string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trips = append(s.trips, provider)
}

type routerFixture struct {
	router  *Router
	store   *providers.MemoryStore
	breaker *circuitbreaker.Memory
	repo    *audit.MemoryRepo
	secrets *secrets.Store
	twilio  *stubProvider
	exotel  *stubProvider
}

func newRouterFixture(t *testing.T, settings circuitbreaker.Settings) *routerFixture {
	t.Helper()

	sec, err := secrets.NewStore(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("secrets store: %v", err)
	}

	f := &routerFixture{
		store:   providers.NewMemoryStore(),
		breaker: circuitbreaker.NewMemory(settings),
		repo:    audit.NewMemoryRepo(),
		secrets: sec,
		twilio:  &stubProvider{name: telephony.ProviderTwilio, healthy: true},
		exotel:  &stubProvider{name: telephony.ProviderExotel, healthy: true},
	}
	f.router = NewRouter(RouterOptions{
		Providers: telephony.NewRegistry(f.twilio, f.exotel),
		Store:     f.store,
		Secrets:   sec,
		Breaker:   f.breaker,
		Audit:     audit.NewService(f.repo),
	})
	return f
}

func (f *routerFixture) encrypt(t *testing.T, creds map[string]string) string {
	t.Helper()
	blob, err := f.secrets.Encrypt(creds)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	return blob
}

func (f *routerFixture) seedConfig(t *testing.T, withBackup bool) {
	t.Helper()
	cfg := providers.Config{
		TenantID:          "t1",
		Provider:          telephony.ProviderTwilio,
		Credentials:       f.encrypt(t, map[string]string{"account_sid": "AC1", "auth_token": "tok"}),
		IsActive:          true,
		FailoverThreshold: 2,
	}
	if withBackup {
		cfg.BackupProvider = telephony.ProviderExotel
		cfg.BackupCredentials = f.encrypt(t, map[string]string{"account_sid": "EX1", "api_key": "k", "api_token": "t"})
	}
	if err := f.store.UpsertConfig(context.Background(), cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}
}

func outboundReq() telephony.OutboundCallRequest {
	return telephony.OutboundCallRequest{ToNumber: "+15550001111", FromNumber: "+15550002222"}
}

func TestRouteOutbound_PrimarySuccess(t *testing.T) {
	f := newRouterFixture(t, circuitbreaker.Settings{})
	f.seedConfig(t, true)

	call, err := f.router.RouteOutbound(context.Background(), "t1", outboundReq())
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if call.ExternalCallID != "out-twilio" {
		t.Fatalf("expected twilio call, got %q", call.ExternalCallID)
	}

	attempts := f.repo.CallAttempts()
	if len(attempts) != 1 || attempts[0].Outcome != audit.OutcomeSuccess {
		t.Fatalf("unexpected attempts: %+v", attempts)
	}
}

func TestRouteOutbound_FailoverAndRetrySucceeds(t *testing.T) {
	f := newRouterFixture(t, circuitbreaker.Settings{})
	f.seedConfig(t, true)

	f.twilio.outboundFn = func() (telephony.OutboundCall, error) {
		return telephony.OutboundCall{}, &telephony.ConnectionError{
			Provider: telephony.ProviderTwilio,
			Err:      errors.New("connection refused"),
		}
	}

	call, err := f.router.RouteOutbound(context.Background(), "t1", outboundReq())
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if call.ExternalCallID != "out-exotel" {
		t.Fatalf("expected exotel call, got %q", call.ExternalCallID)
	}
	if f.twilio.outboundCalls != 1 || f.exotel.outboundCalls != 1 {
		t.Fatalf("expected exactly one attempt each, got twilio=%d exotel=%d", f.twilio.outboundCalls, f.exotel.outboundCalls)
	}

	// Backup is now primary; nothing left to fail over to.
	cfg, err := f.store.GetActiveConfig(context.Background(), "t1")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if cfg.Provider != telephony.ProviderExotel {
		t.Fatalf("expected exotel promoted, got %q", cfg.Provider)
	}
	if cfg.HasBackup() {
		t.Fatalf("expected backup cleared")
	}
	if cfg.ErrorCount != 1 {
		t.Fatalf("expected error_count 1, got %d", cfg.ErrorCount)
	}

	var sawFailover bool
	for _, e := range f.repo.Events() {
		if e.Type == audit.EventTypeFailover && e.FromProvider == telephony.ProviderTwilio && e.ToProvider == telephony.ProviderExotel {
			sawFailover = true
		}
	}
	if !sawFailover {
		t.Fatalf("expected failover audit event, got %+v", f.repo.Events())
	}

	attempts := f.repo.CallAttempts()
	if len(attempts) != 1 || attempts[0].Outcome != audit.OutcomeFailedOver {
		t.Fatalf("expected one failed_over attempt, got %+v", attempts)
	}
}

func TestRouteOutbound_NoBackup(t *testing.T) {
	f := newRouterFixture(t, circuitbreaker.Settings{})
	f.seedConfig(t, false)

	f.twilio.outboundFn = func() (telephony.OutboundCall, error) {
		return telephony.OutboundCall{}, &telephony.ConnectionError{
			Provider: telephony.ProviderTwilio,
			Err:      errors.New("dial timeout"),
		}
	}

	_, err := f.router.RouteOutbound(context.Background(), "t1", outboundReq())
	var routeErr *RoutingFailedError
	if !errors.As(err, &routeErr) {
		t.Fatalf("expected RoutingFailedError, got %v", err)
	}
	if routeErr.Provider != telephony.ProviderTwilio {
		t.Fatalf("expected twilio as failing provider, got %q", routeErr.Provider)
	}
	if f.exotel.outboundCalls != 0 {
		t.Fatalf("exotel must not be attempted without a configured backup")
	}
}

func TestRouteOutbound_RejectionFailsOver(t *testing.T) {
	f := newRouterFixture(t, circuitbreaker.Settings{FailureThreshold: 1, ResetTimeout: time.Hour})
	f.seedConfig(t, true)

	// Rejections like balance exhaustion are provider-specific; the backup
	// must get its chance.
	f.twilio.outboundFn = func() (telephony.OutboundCall, error) {
		return telephony.OutboundCall{}, &telephony.RejectionError{
			Provider:   telephony.ProviderTwilio,
			StatusCode: 402,
			Reason:     "insufficient balance",
		}
	}

	call, err := f.router.RouteOutbound(context.Background(), "t1", outboundReq())
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if call.ExternalCallID != "out-exotel" {
		t.Fatalf("expected failover to exotel, got %q", call.ExternalCallID)
	}
	if f.twilio.outboundCalls != 1 || f.exotel.outboundCalls != 1 {
		t.Fatalf("expected one attempt each, got twilio=%d exotel=%d", f.twilio.outboundCalls, f.exotel.outboundCalls)
	}

	state, _ := f.breaker.State(context.Background(), "t1", string(telephony.ProviderTwilio))
	if state != circuitbreaker.StateOpen {
		t.Fatalf("rejection must count against the breaker, state %q", state)
	}
}

func TestRouteOutbound_RejectionNoBackup(t *testing.T) {
	f := newRouterFixture(t, circuitbreaker.Settings{})
	f.seedConfig(t, false)

	f.twilio.outboundFn = func() (telephony.OutboundCall, error) {
		return telephony.OutboundCall{}, &telephony.RejectionError{
			Provider:   telephony.ProviderTwilio,
			StatusCode: 402,
			Reason:     "insufficient balance",
		}
	}

	_, err := f.router.RouteOutbound(context.Background(), "t1", outboundReq())
	var routeErr *RoutingFailedError
	if !errors.As(err, &routeErr) {
		t.Fatalf("expected RoutingFailedError, got %v", err)
	}
	var rejErr *telephony.RejectionError
	if !errors.As(err, &rejErr) || rejErr.StatusCode != 402 {
		t.Fatalf("expected wrapped rejection cause, got %v", err)
	}
}

func TestRouteOutbound_BreakerTripRecorded(t *testing.T) {
	f := newRouterFixture(t, circuitbreaker.Settings{FailureThreshold: 1, ResetTimeout: time.Hour})
	sink := &trackingSink{}
	f.router = NewRouter(RouterOptions{
		Providers: telephony.NewRegistry(f.twilio, f.exotel),
		Store:     f.store,
		Secrets:   f.secrets,
		Breaker:   f.breaker,
		Audit:     audit.NewService(f.repo),
		Metrics:   sink,
	})
	f.seedConfig(t, true)

	f.twilio.outboundFn = func() (telephony.OutboundCall, error) {
		return telephony.OutboundCall{}, &telephony.ConnectionError{
			Provider: telephony.ProviderTwilio,
			Err:      errors.New("connection refused"),
		}
	}

	if _, err := f.router.RouteOutbound(context.Background(), "t1", outboundReq()); err != nil {
		t.Fatalf("route: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.trips) != 1 || sink.trips[0] != "twilio" {
		t.Fatalf("expected one twilio trip, got %v", sink.trips)
	}
}

func TestRouteOutbound_BreakerOpenSkipsAdapter(t *testing.T) {
	f := newRouterFixture(t, circuitbreaker.Settings{FailureThreshold: 1, ResetTimeout: time.Hour})
	f.seedConfig(t, true)

	// Trip the twilio pair before routing.
	_ = f.breaker.RecordFailure(context.Background(), "t1", string(telephony.ProviderTwilio))

	call, err := f.router.RouteOutbound(context.Background(), "t1", outboundReq())
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if call.ExternalCallID != "out-exotel" {
		t.Fatalf("expected exotel call, got %q", call.ExternalCallID)
	}
	if f.twilio.outboundCalls != 0 {
		t.Fatalf("open breaker must skip the adapter entirely")
	}
}

func TestRouteOutbound_DecryptFailureCountsAsProviderFailure(t *testing.T) {
	f := newRouterFixture(t, circuitbreaker.Settings{FailureThreshold: 1, ResetTimeout: time.Hour})
	f.seedConfig(t, true)

	// Corrupt the stored primary blob.
	cfg, _ := f.store.GetActiveConfig(context.Background(), "t1")
	cfg.Credentials = "bm90IGEgcmVhbCBibG9i"
	if err := f.store.UpsertConfig(context.Background(), cfg); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	call, err := f.router.RouteOutbound(context.Background(), "t1", outboundReq())
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if call.ExternalCallID != "out-exotel" {
		t.Fatalf("expected failover to exotel, got %q", call.ExternalCallID)
	}
	if f.twilio.outboundCalls != 0 {
		t.Fatalf("adapter must not run without decrypted credentials")
	}

	state, _ := f.breaker.State(context.Background(), "t1", string(telephony.ProviderTwilio))
	if state != circuitbreaker.StateOpen {
		t.Fatalf("decrypt failure must count against the breaker, state %q", state)
	}
}

func TestRouteOutbound_NotConfigured(t *testing.T) {
	f := newRouterFixture(t, circuitbreaker.Settings{})

	_, err := f.router.RouteOutbound(context.Background(), "missing", outboundReq())
	var ncErr *NotConfiguredError
	if !errors.As(err, &ncErr) {
		t.Fatalf("expected NotConfiguredError, got %v", err)
	}
}

func TestRouteInbound_FailoverAndRetrySucceeds(t *testing.T) {
	f := newRouterFixture(t, circuitbreaker.Settings{})
	f.seedConfig(t, true)

	f.twilio.inboundFn = func() (telephony.InboundCall, error) {
		return telephony.InboundCall{}, &telephony.ConnectionError{
			Provider: telephony.ProviderTwilio,
			Err:      errors.New("connection reset"),
		}
	}

	call, err := f.router.RouteInbound(context.Background(), "t1", telephony.WebhookPayload{
		ContentType: "application/x-www-form-urlencoded",
		Body:        []byte("CallSid=CA1&From=%2B15550001111&To=%2B15550002222"),
	})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if call.ExternalCallID != "in-exotel" {
		t.Fatalf("expected exotel inbound, got %q", call.ExternalCallID)
	}
}

func TestSelectProvider_BadCredentialsNotPersisted(t *testing.T) {
	f := newRouterFixture(t, circuitbreaker.Settings{})

	f.twilio.testFn = func() (telephony.AccountMetadata, error) {
		return telephony.AccountMetadata{}, &telephony.ConnectionError{
			Provider: telephony.ProviderTwilio,
			Err:      errors.New("401 unauthorized"),
		}
	}

	_, err := f.router.SelectProvider(context.Background(), SelectProviderRequest{
		TenantID:    "t1",
		Provider:    "twilio",
		Credentials: map[string]string{"account_sid": "AC1", "auth_token": "bad"},
	})
	if err == nil {
		t.Fatalf("expected verification error")
	}

	if _, err := f.store.GetActiveConfig(context.Background(), "t1"); !errors.Is(err, providers.ErrNotFound) {
		t.Fatalf("rejected credentials must not be persisted, got %v", err)
	}
}

func TestSelectProvider_PersistsEncrypted(t *testing.T) {
	f := newRouterFixture(t, circuitbreaker.Settings{})

	summary, err := f.router.SelectProvider(context.Background(), SelectProviderRequest{
		TenantID:          "t1",
		Provider:          "twilio",
		Credentials:       map[string]string{"account_sid": "AC1", "auth_token": "tok"},
		BackupProvider:    "exotel",
		BackupCredentials: map[string]string{"account_sid": "EX1", "api_key": "k", "api_token": "t"},
		FailoverThreshold: 2,
	})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if summary.Provider != telephony.ProviderTwilio || summary.BackupProvider != telephony.ProviderExotel {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	cfg, err := f.store.GetActiveConfig(context.Background(), "t1")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	creds, err := f.secrets.Decrypt(cfg.Credentials)
	if err != nil {
		t.Fatalf("stored blob must decrypt: %v", err)
	}
	if creds["auth_token"] != "tok" {
		t.Fatalf("round-trip mismatch: %+v", creds)
	}

	var sawSelected bool
	for _, e := range f.repo.Events() {
		if e.Type == audit.EventTypeProviderSelected {
			sawSelected = true
		}
	}
	if !sawSelected {
		t.Fatalf("expected provider_selected audit event")
	}
}

func TestSelectProvider_UnknownProvider(t *testing.T) {
	f := newRouterFixture(t, circuitbreaker.Settings{})

	_, err := f.router.SelectProvider(context.Background(), SelectProviderRequest{
		TenantID:    "t1",
		Provider:    "plivo",
		Credentials: map[string]string{"k": "v"},
	})
	var upErr *telephony.UnknownProviderError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UnknownProviderError, got %v", err)
	}
}

func TestTriggerManualFailover(t *testing.T) {
	f := newRouterFixture(t, circuitbreaker.Settings{})
	f.seedConfig(t, true)

	ctx := WithActor(context.Background(), Actor{UserID: "u1", Role: "owner"})
	summary, err := f.router.TriggerManualFailover(ctx, "t1", "primary degraded")
	if err != nil {
		t.Fatalf("failover: %v", err)
	}
	if summary.Provider != telephony.ProviderExotel {
		t.Fatalf("expected exotel promoted, got %q", summary.Provider)
	}

	events := f.repo.Events()
	if len(events) != 1 || events[0].Type != audit.EventTypeManualFailover {
		t.Fatalf("expected manual_failover event, got %+v", events)
	}
	if events[0].ActorUserID != "u1" || events[0].ActorRole != "owner" {
		t.Fatalf("expected actor captured, got %+v", events[0])
	}

	// One-shot: nothing left to promote.
	_, err = f.router.TriggerManualFailover(ctx, "t1", "")
	var nbErr *NoBackupAvailableError
	if !errors.As(err, &nbErr) {
		t.Fatalf("expected NoBackupAvailableError, got %v", err)
	}
}

func TestGetProviderStatus(t *testing.T) {
	f := newRouterFixture(t, circuitbreaker.Settings{})
	f.seedConfig(t, true)
	f.twilio.healthy = true

	status, err := f.router.GetProviderStatus(context.Background(), "t1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Healthy {
		t.Fatalf("expected healthy provider")
	}
	if status.BreakerState != circuitbreaker.StateClosed {
		t.Fatalf("expected closed breaker, got %q", status.BreakerState)
	}
	if status.Provider != telephony.ProviderTwilio {
		t.Fatalf("unexpected summary: %+v", status.Summary)
	}
}
