package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// VoiceBaseProvider adapts the VoiceBase JSON API.
//
// Required credentials: bearer_token.
// VoiceBase webhooks arrive as JSON.
type VoiceBaseProvider struct {
	BaseURL string
	Client  *http.Client
}

const voicebaseDefaultBaseURL = "https://apis.voicebase.com"

func NewVoiceBaseProvider() *VoiceBaseProvider {
	return &VoiceBaseProvider{BaseURL: voicebaseDefaultBaseURL, Client: defaultHTTPClient()}
}

func (p *VoiceBaseProvider) Name() ProviderName { return ProviderVoiceBase }

func (p *VoiceBaseProvider) base() string {
	if p.BaseURL != "" {
		return strings.TrimRight(p.BaseURL, "/")
	}
	return voicebaseDefaultBaseURL
}

func (p *VoiceBaseProvider) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}

func (p *VoiceBaseProvider) TestConnection(ctx context.Context, creds Credentials) (AccountMetadata, error) {
	token, err := creds.get("bearer_token")
	if err != nil {
		return AccountMetadata{}, &ConnectionError{Provider: ProviderVoiceBase, Err: err}
	}

	req, err := http.NewRequest(http.MethodGet, p.base()+"/v3/profile", nil)
	if err != nil {
		return AccountMetadata{}, &ConnectionError{Provider: ProviderVoiceBase, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	status, body, err := send(ctx, p.client(), req)
	if err != nil {
		return AccountMetadata{}, &ConnectionError{Provider: ProviderVoiceBase, Err: err}
	}
	if status != http.StatusOK {
		return AccountMetadata{}, &ConnectionError{Provider: ProviderVoiceBase, Err: fmt.Errorf("status %d: %s", status, vendorReason(body))}
	}

	var profile struct {
		AccountID string `json:"accountId"`
		Name      string `json:"name"`
	}
	if err := json.Unmarshal(body, &profile); err != nil {
		return AccountMetadata{}, &ConnectionError{Provider: ProviderVoiceBase, Err: err}
	}
	return AccountMetadata{AccountID: profile.AccountID, Name: profile.Name, Status: "active"}, nil
}

// voicebaseInboundEvent is the JSON webhook shape for inbound call events.
type voicebaseInboundEvent struct {
	CallID    string `json:"callId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Direction string `json:"direction"`
}

func (p *VoiceBaseProvider) HandleInboundCall(ctx context.Context, payload WebhookPayload, creds Credentials) (InboundCall, error) {
	var ev voicebaseInboundEvent
	if err := json.Unmarshal(payload.Body, &ev); err != nil {
		return InboundCall{}, fmt.Errorf("telephony: voicebase webhook decode: %w", err)
	}
	call := InboundCall{
		ExternalCallID: ev.CallID,
		From:           normalizePhone(ev.From),
		To:             normalizePhone(ev.To),
		Direction:      DirectionInbound,
	}
	return call.validate(ProviderVoiceBase)
}

type voicebaseCall struct {
	CallID          string `json:"callId"`
	Status          string `json:"status"`
	From            string `json:"from"`
	To              string `json:"to"`
	DurationSeconds int    `json:"durationSeconds"`
	RecordingURL    string `json:"recordingUrl"`
}

func (p *VoiceBaseProvider) InitiateOutboundCall(ctx context.Context, callReq OutboundCallRequest, creds Credentials) (OutboundCall, error) {
	token, err := creds.get("bearer_token")
	if err != nil {
		return OutboundCall{}, &ConnectionError{Provider: ProviderVoiceBase, Err: err}
	}

	reqBody, err := json.Marshal(map[string]string{
		"to":          callReq.ToNumber,
		"from":        callReq.FromNumber,
		"callbackUrl": callReq.CallbackURL,
	})
	if err != nil {
		return OutboundCall{}, &ConnectionError{Provider: ProviderVoiceBase, Err: err}
	}

	req, err := http.NewRequest(http.MethodPost, p.base()+"/v3/calls", bytes.NewReader(reqBody))
	if err != nil {
		return OutboundCall{}, &ConnectionError{Provider: ProviderVoiceBase, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	status, body, err := send(ctx, p.client(), req)
	if err != nil {
		return OutboundCall{}, &ConnectionError{Provider: ProviderVoiceBase, Err: err}
	}
	if status >= 400 && status < 500 {
		return OutboundCall{}, &RejectionError{Provider: ProviderVoiceBase, StatusCode: status, Reason: vendorReason(body)}
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return OutboundCall{}, &ConnectionError{Provider: ProviderVoiceBase, Err: fmt.Errorf("status %d: %s", status, vendorReason(body))}
	}

	var call voicebaseCall
	if err := json.Unmarshal(body, &call); err != nil {
		return OutboundCall{}, &ConnectionError{Provider: ProviderVoiceBase, Err: err}
	}
	return OutboundCall{ExternalCallID: call.CallID, Status: call.Status}, nil
}

func (p *VoiceBaseProvider) EndCall(ctx context.Context, externalCallID string, creds Credentials) error {
	token, err := creds.get("bearer_token")
	if err != nil {
		return &ConnectionError{Provider: ProviderVoiceBase, Err: err}
	}

	u := fmt.Sprintf("%s/v3/calls/%s", p.base(), url.PathEscape(externalCallID))
	req, err := http.NewRequest(http.MethodDelete, u, nil)
	if err != nil {
		return &ConnectionError{Provider: ProviderVoiceBase, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	status, body, err := send(ctx, p.client(), req)
	if err != nil {
		return &ConnectionError{Provider: ProviderVoiceBase, Err: err}
	}
	switch {
	case status == http.StatusOK || status == http.StatusNoContent:
		return nil
	case status == http.StatusNotFound:
		return &NotFoundError{Provider: ProviderVoiceBase, ExternalCallID: externalCallID}
	default:
		return &ConnectionError{Provider: ProviderVoiceBase, Err: fmt.Errorf("status %d: %s", status, vendorReason(body))}
	}
}

func (p *VoiceBaseProvider) GetCallDetails(ctx context.Context, externalCallID string, creds Credentials) (CallDetail, error) {
	token, err := creds.get("bearer_token")
	if err != nil {
		return CallDetail{}, &ConnectionError{Provider: ProviderVoiceBase, Err: err}
	}

	u := fmt.Sprintf("%s/v3/calls/%s", p.base(), url.PathEscape(externalCallID))
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return CallDetail{}, &ConnectionError{Provider: ProviderVoiceBase, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	status, body, err := send(ctx, p.client(), req)
	if err != nil {
		return CallDetail{}, &ConnectionError{Provider: ProviderVoiceBase, Err: err}
	}
	if status == http.StatusNotFound {
		return CallDetail{}, &NotFoundError{Provider: ProviderVoiceBase, ExternalCallID: externalCallID}
	}
	if status != http.StatusOK {
		return CallDetail{}, &ConnectionError{Provider: ProviderVoiceBase, Err: fmt.Errorf("status %d: %s", status, vendorReason(body))}
	}

	var call voicebaseCall
	if err := json.Unmarshal(body, &call); err != nil {
		return CallDetail{}, &ConnectionError{Provider: ProviderVoiceBase, Err: err}
	}
	return CallDetail{
		Status:          call.Status,
		DurationSeconds: call.DurationSeconds,
		From:            call.From,
		To:              call.To,
		RecordingURL:    call.RecordingURL,
	}, nil
}

func (p *VoiceBaseProvider) CheckHealth(ctx context.Context, creds Credentials) bool {
	_, err := p.TestConnection(ctx, creds)
	return err == nil
}
