package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ExotelProvider adapts the Exotel voice REST API.
//
// Required credentials: account_sid, api_key, api_token.
// Exotel webhooks arrive as query-style form parameters.
type ExotelProvider struct {
	BaseURL string
	Client  *http.Client
}

const exotelDefaultBaseURL = "https://api.exotel.com"

func NewExotelProvider() *ExotelProvider {
	return &ExotelProvider{BaseURL: exotelDefaultBaseURL, Client: defaultHTTPClient()}
}

func (p *ExotelProvider) Name() ProviderName { return ProviderExotel }

func (p *ExotelProvider) base() string {
	if p.BaseURL != "" {
		return strings.TrimRight(p.BaseURL, "/")
	}
	return exotelDefaultBaseURL
}

func (p *ExotelProvider) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}

func (p *ExotelProvider) TestConnection(ctx context.Context, creds Credentials) (AccountMetadata, error) {
	sid, key, token, err := exotelAuth(creds)
	if err != nil {
		return AccountMetadata{}, &ConnectionError{Provider: ProviderExotel, Err: err}
	}

	u := fmt.Sprintf("%s/v1/Accounts/%s.json", p.base(), url.PathEscape(sid))
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return AccountMetadata{}, &ConnectionError{Provider: ProviderExotel, Err: err}
	}
	req.SetBasicAuth(key, token)

	status, body, err := send(ctx, p.client(), req)
	if err != nil {
		return AccountMetadata{}, &ConnectionError{Provider: ProviderExotel, Err: err}
	}
	if status != http.StatusOK {
		return AccountMetadata{}, &ConnectionError{Provider: ProviderExotel, Err: fmt.Errorf("status %d: %s", status, vendorReason(body))}
	}

	var res struct {
		Account struct {
			Sid    string `json:"sid"`
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"Account"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return AccountMetadata{}, &ConnectionError{Provider: ProviderExotel, Err: err}
	}
	return AccountMetadata{AccountID: res.Account.Sid, Name: res.Account.Name, Status: res.Account.Status}, nil
}

func (p *ExotelProvider) HandleInboundCall(ctx context.Context, payload WebhookPayload, creds Credentials) (InboundCall, error) {
	values, err := url.ParseQuery(string(payload.Body))
	if err != nil {
		return InboundCall{}, err
	}
	call := InboundCall{
		ExternalCallID: values.Get("CallSid"),
		From:           normalizePhone(values.Get("CallFrom")),
		To:             normalizePhone(values.Get("CallTo")),
		Direction:      DirectionInbound,
	}
	return call.validate(ProviderExotel)
}

type exotelCallEnvelope struct {
	Call struct {
		Sid          string `json:"Sid"`
		Status       string `json:"Status"`
		From         string `json:"From"`
		To           string `json:"To"`
		Duration     int    `json:"Duration"`
		RecordingURL string `json:"RecordingUrl"`
	} `json:"Call"`
}

func (p *ExotelProvider) InitiateOutboundCall(ctx context.Context, callReq OutboundCallRequest, creds Credentials) (OutboundCall, error) {
	sid, key, token, err := exotelAuth(creds)
	if err != nil {
		return OutboundCall{}, &ConnectionError{Provider: ProviderExotel, Err: err}
	}

	form := url.Values{}
	form.Set("From", callReq.FromNumber)
	form.Set("To", callReq.ToNumber)
	form.Set("CallerId", callReq.FromNumber)
	if callReq.CallbackURL != "" {
		form.Set("StatusCallback", callReq.CallbackURL)
	}

	u := fmt.Sprintf("%s/v1/Accounts/%s/Calls/connect.json", p.base(), url.PathEscape(sid))
	req, err := http.NewRequest(http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return OutboundCall{}, &ConnectionError{Provider: ProviderExotel, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(key, token)

	status, body, err := send(ctx, p.client(), req)
	if err != nil {
		return OutboundCall{}, &ConnectionError{Provider: ProviderExotel, Err: err}
	}
	if status >= 400 && status < 500 {
		return OutboundCall{}, &RejectionError{Provider: ProviderExotel, StatusCode: status, Reason: vendorReason(body)}
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return OutboundCall{}, &ConnectionError{Provider: ProviderExotel, Err: fmt.Errorf("status %d: %s", status, vendorReason(body))}
	}

	var env exotelCallEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return OutboundCall{}, &ConnectionError{Provider: ProviderExotel, Err: err}
	}
	return OutboundCall{ExternalCallID: env.Call.Sid, Status: env.Call.Status}, nil
}

func (p *ExotelProvider) EndCall(ctx context.Context, externalCallID string, creds Credentials) error {
	sid, key, token, err := exotelAuth(creds)
	if err != nil {
		return &ConnectionError{Provider: ProviderExotel, Err: err}
	}

	form := url.Values{}
	form.Set("Status", "completed")

	u := fmt.Sprintf("%s/v1/Accounts/%s/Calls/%s.json", p.base(), url.PathEscape(sid), url.PathEscape(externalCallID))
	req, err := http.NewRequest(http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return &ConnectionError{Provider: ProviderExotel, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(key, token)

	status, body, err := send(ctx, p.client(), req)
	if err != nil {
		return &ConnectionError{Provider: ProviderExotel, Err: err}
	}
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusNotFound:
		return &NotFoundError{Provider: ProviderExotel, ExternalCallID: externalCallID}
	default:
		return &ConnectionError{Provider: ProviderExotel, Err: fmt.Errorf("status %d: %s", status, vendorReason(body))}
	}
}

func (p *ExotelProvider) GetCallDetails(ctx context.Context, externalCallID string, creds Credentials) (CallDetail, error) {
	sid, key, token, err := exotelAuth(creds)
	if err != nil {
		return CallDetail{}, &ConnectionError{Provider: ProviderExotel, Err: err}
	}

	u := fmt.Sprintf("%s/v1/Accounts/%s/Calls/%s.json", p.base(), url.PathEscape(sid), url.PathEscape(externalCallID))
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return CallDetail{}, &ConnectionError{Provider: ProviderExotel, Err: err}
	}
	req.SetBasicAuth(key, token)

	status, body, err := send(ctx, p.client(), req)
	if err != nil {
		return CallDetail{}, &ConnectionError{Provider: ProviderExotel, Err: err}
	}
	if status == http.StatusNotFound {
		return CallDetail{}, &NotFoundError{Provider: ProviderExotel, ExternalCallID: externalCallID}
	}
	if status != http.StatusOK {
		return CallDetail{}, &ConnectionError{Provider: ProviderExotel, Err: fmt.Errorf("status %d: %s", status, vendorReason(body))}
	}

	var env exotelCallEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return CallDetail{}, &ConnectionError{Provider: ProviderExotel, Err: err}
	}
	return CallDetail{
		Status:          env.Call.Status,
		DurationSeconds: env.Call.Duration,
		From:            env.Call.From,
		To:              env.Call.To,
		RecordingURL:    env.Call.RecordingURL,
	}, nil
}

func (p *ExotelProvider) CheckHealth(ctx context.Context, creds Credentials) bool {
	_, err := p.TestConnection(ctx, creds)
	return err == nil
}

func exotelAuth(creds Credentials) (sid, key, token string, err error) {
	sid, err = creds.get("account_sid")
	if err != nil {
		return "", "", "", err
	}
	key, err = creds.get("api_key")
	if err != nil {
		return "", "", "", err
	}
	token, err = creds.get("api_token")
	if err != nil {
		return "", "", "", err
	}
	return sid, key, token, nil
}
