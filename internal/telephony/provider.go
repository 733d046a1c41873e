package telephony

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider is the capability interface every vendor adapter must implement.
//
// Rules:
// - No vendor SDK calls outside telephony adapters.
// - Adapters never retry internally; retry/failover belongs to the router.
// - Timeouts are enforced by the caller via ctx, not by the adapter.
// - Credentials arrive decrypted per call and must never be logged.
type Provider interface {
	Name() ProviderName

	// TestConnection verifies the credentials against a lightweight vendor
	// endpoint. Fails with *ConnectionError.
	TestConnection(ctx context.Context, creds Credentials) (AccountMetadata, error)

	// HandleInboundCall normalizes a vendor webhook payload. Adapters parse
	// only their own payload shape.
	HandleInboundCall(ctx context.Context, payload WebhookPayload, creds Credentials) (InboundCall, error)

	// InitiateOutboundCall places a call. Fails with *RejectionError when the
	// vendor explicitly declines (bad number, balance, auth).
	InitiateOutboundCall(ctx context.Context, req OutboundCallRequest, creds Credentials) (OutboundCall, error)

	// EndCall hangs up an in-progress call. Fails with *NotFoundError when the
	// vendor does not know the call.
	EndCall(ctx context.Context, externalCallID string, creds Credentials) error

	GetCallDetails(ctx context.Context, externalCallID string, creds Credentials) (CallDetail, error)

	// CheckHealth is a thin wrapper over TestConnection that swallows errors
	// to a boolean.
	CheckHealth(ctx context.Context, creds Credentials) bool
}

// ProviderName is the closed set of supported vendors.
type ProviderName string

const (
	ProviderTwilio    ProviderName = "twilio"
	ProviderExotel    ProviderName = "exotel"
	ProviderVoiceBase ProviderName = "voicebase"
	ProviderCustom    ProviderName = "custom"
)

// ParseProviderName validates a vendor identifier at the boundary.
func ParseProviderName(s string) (ProviderName, error) {
	switch ProviderName(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderTwilio:
		return ProviderTwilio, nil
	case ProviderExotel:
		return ProviderExotel, nil
	case ProviderVoiceBase:
		return ProviderVoiceBase, nil
	case ProviderCustom:
		return ProviderCustom, nil
	default:
		return "", &UnknownProviderError{Name: s}
	}
}

// Credentials are decrypted per-tenant vendor secrets. Opaque to the router;
// each adapter documents the keys it requires.
type Credentials map[string]string

func (c Credentials) get(key string) (string, error) {
	v := strings.TrimSpace(c[key])
	if v == "" {
		return "", fmt.Errorf("telephony: credential %q is required", key)
	}
	return v, nil
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// WebhookPayload is the raw vendor webhook body, passed through opaquely to
// the tenant's configured adapter.
type WebhookPayload struct {
	ContentType string
	Body        []byte
}

// InboundCall is the provider-agnostic representation of an inbound webhook event.
type InboundCall struct {
	ExternalCallID string       `json:"external_call_id"`
	From           string       `json:"from"`
	To             string       `json:"to"`
	Direction      Direction    `json:"direction"`
	Provider       ProviderName `json:"provider"`
}

func (c InboundCall) validate(p ProviderName) (InboundCall, error) {
	if c.ExternalCallID == "" {
		return InboundCall{}, errors.New("telephony: webhook payload missing call id")
	}
	if c.Direction == "" {
		c.Direction = DirectionInbound
	}
	c.Provider = p
	return c, nil
}

type OutboundCallRequest struct {
	ToNumber    string            `json:"to_number"`
	FromNumber  string            `json:"from_number"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (r OutboundCallRequest) Validate() error {
	if strings.TrimSpace(r.ToNumber) == "" {
		return errors.New("telephony: to_number is required")
	}
	if strings.TrimSpace(r.FromNumber) == "" {
		return errors.New("telephony: from_number is required")
	}
	return nil
}

type OutboundCall struct {
	ExternalCallID string `json:"external_call_id"`
	Status         string `json:"status"`
}

type CallDetail struct {
	Status          string `json:"status"`
	DurationSeconds int    `json:"duration_seconds"`
	From            string `json:"from"`
	To              string `json:"to"`
	RecordingURL    string `json:"recording_url,omitempty"`
}

// AccountMetadata is the non-secret vendor account summary returned by a
// successful connectivity test.
type AccountMetadata struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name,omitempty"`
	Status    string `json:"status,omitempty"`
}
