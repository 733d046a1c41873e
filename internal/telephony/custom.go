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

// CustomProvider adapts tenant-hosted gateways that speak our generic JSON
// contract. It replaces vendor lock-in for tenants running their own SIP
// trunk front-end.
//
// Required credentials: base_url, api_key.
//
// Contract:
//   GET  {base}/health           -> 200 {"account_id": "...", "name": "..."}
//   POST {base}/calls            -> 201 {"call_id": "...", "status": "..."}
//   POST {base}/calls/{id}/hangup -> 200
//   GET  {base}/calls/{id}       -> 200 call detail JSON
type CustomProvider struct {
	Client *http.Client
}

func NewCustomProvider() *CustomProvider {
	return &CustomProvider{Client: defaultHTTPClient()}
}

func (p *CustomProvider) Name() ProviderName { return ProviderCustom }

func (p *CustomProvider) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}

func customAuth(creds Credentials) (base, key string, err error) {
	base, err = creds.get("base_url")
	if err != nil {
		return "", "", err
	}
	key, err = creds.get("api_key")
	if err != nil {
		return "", "", err
	}
	return strings.TrimRight(base, "/"), key, nil
}

func (p *CustomProvider) TestConnection(ctx context.Context, creds Credentials) (AccountMetadata, error) {
	base, key, err := customAuth(creds)
	if err != nil {
		return AccountMetadata{}, &ConnectionError{Provider: ProviderCustom, Err: err}
	}

	req, err := http.NewRequest(http.MethodGet, base+"/health", nil)
	if err != nil {
		return AccountMetadata{}, &ConnectionError{Provider: ProviderCustom, Err: err}
	}
	req.Header.Set("X-Api-Key", key)

	status, body, err := send(ctx, p.client(), req)
	if err != nil {
		return AccountMetadata{}, &ConnectionError{Provider: ProviderCustom, Err: err}
	}
	if status != http.StatusOK {
		return AccountMetadata{}, &ConnectionError{Provider: ProviderCustom, Err: fmt.Errorf("status %d: %s", status, vendorReason(body))}
	}

	var meta AccountMetadata
	// A bare 200 with no body is acceptable for minimal gateways.
	_ = json.Unmarshal(body, &meta)
	if meta.Status == "" {
		meta.Status = "active"
	}
	return meta, nil
}

// customInboundEvent is the generic JSON webhook shape.
type customInboundEvent struct {
	CallID    string `json:"call_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Direction string `json:"direction"`
}

func (p *CustomProvider) HandleInboundCall(ctx context.Context, payload WebhookPayload, creds Credentials) (InboundCall, error) {
	var ev customInboundEvent
	if err := json.Unmarshal(payload.Body, &ev); err != nil {
		return InboundCall{}, fmt.Errorf("telephony: custom webhook decode: %w", err)
	}
	call := InboundCall{
		ExternalCallID: ev.CallID,
		From:           normalizePhone(ev.From),
		To:             normalizePhone(ev.To),
		Direction:      DirectionInbound,
	}
	return call.validate(ProviderCustom)
}

type customCall struct {
	CallID          string `json:"call_id"`
	Status          string `json:"status"`
	From            string `json:"from"`
	To              string `json:"to"`
	DurationSeconds int    `json:"duration_seconds"`
	RecordingURL    string `json:"recording_url"`
}

func (p *CustomProvider) InitiateOutboundCall(ctx context.Context, callReq OutboundCallRequest, creds Credentials) (OutboundCall, error) {
	base, key, err := customAuth(creds)
	if err != nil {
		return OutboundCall{}, &ConnectionError{Provider: ProviderCustom, Err: err}
	}

	reqBody, err := json.Marshal(map[string]any{
		"to":           callReq.ToNumber,
		"from":         callReq.FromNumber,
		"callback_url": callReq.CallbackURL,
		"metadata":     callReq.Metadata,
	})
	if err != nil {
		return OutboundCall{}, &ConnectionError{Provider: ProviderCustom, Err: err}
	}

	req, err := http.NewRequest(http.MethodPost, base+"/calls", bytes.NewReader(reqBody))
	if err != nil {
		return OutboundCall{}, &ConnectionError{Provider: ProviderCustom, Err: err}
	}
	req.Header.Set("X-Api-Key", key)
	req.Header.Set("Content-Type", "application/json")

	status, body, err := send(ctx, p.client(), req)
	if err != nil {
		return OutboundCall{}, &ConnectionError{Provider: ProviderCustom, Err: err}
	}
	if status >= 400 && status < 500 {
		return OutboundCall{}, &RejectionError{Provider: ProviderCustom, StatusCode: status, Reason: vendorReason(body)}
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return OutboundCall{}, &ConnectionError{Provider: ProviderCustom, Err: fmt.Errorf("status %d: %s", status, vendorReason(body))}
	}

	var call customCall
	if err := json.Unmarshal(body, &call); err != nil {
		return OutboundCall{}, &ConnectionError{Provider: ProviderCustom, Err: err}
	}
	return OutboundCall{ExternalCallID: call.CallID, Status: call.Status}, nil
}

func (p *CustomProvider) EndCall(ctx context.Context, externalCallID string, creds Credentials) error {
	base, key, err := customAuth(creds)
	if err != nil {
		return &ConnectionError{Provider: ProviderCustom, Err: err}
	}

	u := fmt.Sprintf("%s/calls/%s/hangup", base, url.PathEscape(externalCallID))
	req, err := http.NewRequest(http.MethodPost, u, nil)
	if err != nil {
		return &ConnectionError{Provider: ProviderCustom, Err: err}
	}
	req.Header.Set("X-Api-Key", key)

	status, body, err := send(ctx, p.client(), req)
	if err != nil {
		return &ConnectionError{Provider: ProviderCustom, Err: err}
	}
	switch {
	case status == http.StatusOK || status == http.StatusNoContent:
		return nil
	case status == http.StatusNotFound:
		return &NotFoundError{Provider: ProviderCustom, ExternalCallID: externalCallID}
	default:
		return &ConnectionError{Provider: ProviderCustom, Err: fmt.Errorf("status %d: %s", status, vendorReason(body))}
	}
}

func (p *CustomProvider) GetCallDetails(ctx context.Context, externalCallID string, creds Credentials) (CallDetail, error) {
	base, key, err := customAuth(creds)
	if err != nil {
		return CallDetail{}, &ConnectionError{Provider: ProviderCustom, Err: err}
	}

	u := fmt.Sprintf("%s/calls/%s", base, url.PathEscape(externalCallID))
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return CallDetail{}, &ConnectionError{Provider: ProviderCustom, Err: err}
	}
	req.Header.Set("X-Api-Key", key)

	status, body, err := send(ctx, p.client(), req)
	if err != nil {
		return CallDetail{}, &ConnectionError{Provider: ProviderCustom, Err: err}
	}
	if status == http.StatusNotFound {
		return CallDetail{}, &NotFoundError{Provider: ProviderCustom, ExternalCallID: externalCallID}
	}
	if status != http.StatusOK {
		return CallDetail{}, &ConnectionError{Provider: ProviderCustom, Err: fmt.Errorf("status %d: %s", status, vendorReason(body))}
	}

	var call customCall
	if err := json.Unmarshal(body, &call); err != nil {
		return CallDetail{}, &ConnectionError{Provider: ProviderCustom, Err: err}
	}
	return CallDetail{
		Status:          call.Status,
		DurationSeconds: call.DurationSeconds,
		From:            call.From,
		To:              call.To,
		RecordingURL:    call.RecordingURL,
	}, nil
}

func (p *CustomProvider) CheckHealth(ctx context.Context, creds Credentials) bool {
	_, err := p.TestConnection(ctx, creds)
	return err == nil
}
