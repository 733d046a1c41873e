package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// TwilioProvider adapts the Twilio voice REST API.
//
// Required credentials: account_sid, auth_token.
type TwilioProvider struct {
	BaseURL string // override for tests; defaults to the public API
	Client  *http.Client
}

const twilioDefaultBaseURL = "https://api.twilio.com"

func NewTwilioProvider() *TwilioProvider {
	return &TwilioProvider{BaseURL: twilioDefaultBaseURL, Client: defaultHTTPClient()}
}

func (p *TwilioProvider) Name() ProviderName { return ProviderTwilio }

func (p *TwilioProvider) base() string {
	if p.BaseURL != "" {
		return strings.TrimRight(p.BaseURL, "/")
	}
	return twilioDefaultBaseURL
}

func (p *TwilioProvider) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}

type twilioAccount struct {
	Sid          string `json:"sid"`
	FriendlyName string `json:"friendly_name"`
	Status       string `json:"status"`
}

func (p *TwilioProvider) TestConnection(ctx context.Context, creds Credentials) (AccountMetadata, error) {
	sid, token, err := twilioAuth(creds)
	if err != nil {
		return AccountMetadata{}, &ConnectionError{Provider: ProviderTwilio, Err: err}
	}

	u := fmt.Sprintf("%s/2010-04-01/Accounts/%s.json", p.base(), url.PathEscape(sid))
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return AccountMetadata{}, &ConnectionError{Provider: ProviderTwilio, Err: err}
	}
	req.SetBasicAuth(sid, token)

	status, body, err := send(ctx, p.client(), req)
	if err != nil {
		return AccountMetadata{}, &ConnectionError{Provider: ProviderTwilio, Err: err}
	}
	if status != http.StatusOK {
		return AccountMetadata{}, &ConnectionError{Provider: ProviderTwilio, Err: fmt.Errorf("status %d: %s", status, vendorReason(body))}
	}

	var acc twilioAccount
	if err := json.Unmarshal(body, &acc); err != nil {
		return AccountMetadata{}, &ConnectionError{Provider: ProviderTwilio, Err: err}
	}
	return AccountMetadata{AccountID: acc.Sid, Name: acc.FriendlyName, Status: acc.Status}, nil
}

func (p *TwilioProvider) HandleInboundCall(ctx context.Context, payload WebhookPayload, creds Credentials) (InboundCall, error) {
	form, err := ParseTwilioInboundForm(payload)
	if err != nil {
		return InboundCall{}, err
	}
	call := InboundCall{
		ExternalCallID: form.CallSid,
		From:           form.From,
		To:             form.To,
		Direction:      DirectionInbound,
	}
	return call.validate(ProviderTwilio)
}

type twilioCall struct {
	Sid      string `json:"sid"`
	Status   string `json:"status"`
	From     string `json:"from"`
	To       string `json:"to"`
	Duration string `json:"duration"` // Twilio returns duration as a string
}

func (p *TwilioProvider) InitiateOutboundCall(ctx context.Context, callReq OutboundCallRequest, creds Credentials) (OutboundCall, error) {
	sid, token, err := twilioAuth(creds)
	if err != nil {
		return OutboundCall{}, &ConnectionError{Provider: ProviderTwilio, Err: err}
	}

	form := url.Values{}
	form.Set("To", callReq.ToNumber)
	form.Set("From", callReq.FromNumber)
	if callReq.CallbackURL != "" {
		form.Set("Url", callReq.CallbackURL)
	}

	u := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", p.base(), url.PathEscape(sid))
	req, err := http.NewRequest(http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return OutboundCall{}, &ConnectionError{Provider: ProviderTwilio, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(sid, token)

	status, body, err := send(ctx, p.client(), req)
	if err != nil {
		return OutboundCall{}, &ConnectionError{Provider: ProviderTwilio, Err: err}
	}
	if status >= 400 && status < 500 {
		return OutboundCall{}, &RejectionError{Provider: ProviderTwilio, StatusCode: status, Reason: vendorReason(body)}
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return OutboundCall{}, &ConnectionError{Provider: ProviderTwilio, Err: fmt.Errorf("status %d: %s", status, vendorReason(body))}
	}

	var call twilioCall
	if err := json.Unmarshal(body, &call); err != nil {
		return OutboundCall{}, &ConnectionError{Provider: ProviderTwilio, Err: err}
	}
	return OutboundCall{ExternalCallID: call.Sid, Status: call.Status}, nil
}

func (p *TwilioProvider) EndCall(ctx context.Context, externalCallID string, creds Credentials) error {
	sid, token, err := twilioAuth(creds)
	if err != nil {
		return &ConnectionError{Provider: ProviderTwilio, Err: err}
	}

	form := url.Values{}
	form.Set("Status", "completed")

	u := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls/%s.json", p.base(), url.PathEscape(sid), url.PathEscape(externalCallID))
	req, err := http.NewRequest(http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return &ConnectionError{Provider: ProviderTwilio, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(sid, token)

	status, body, err := send(ctx, p.client(), req)
	if err != nil {
		return &ConnectionError{Provider: ProviderTwilio, Err: err}
	}
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusNotFound:
		return &NotFoundError{Provider: ProviderTwilio, ExternalCallID: externalCallID}
	default:
		return &ConnectionError{Provider: ProviderTwilio, Err: fmt.Errorf("status %d: %s", status, vendorReason(body))}
	}
}

func (p *TwilioProvider) GetCallDetails(ctx context.Context, externalCallID string, creds Credentials) (CallDetail, error) {
	sid, token, err := twilioAuth(creds)
	if err != nil {
		return CallDetail{}, &ConnectionError{Provider: ProviderTwilio, Err: err}
	}

	u := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls/%s.json", p.base(), url.PathEscape(sid), url.PathEscape(externalCallID))
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return CallDetail{}, &ConnectionError{Provider: ProviderTwilio, Err: err}
	}
	req.SetBasicAuth(sid, token)

	status, body, err := send(ctx, p.client(), req)
	if err != nil {
		return CallDetail{}, &ConnectionError{Provider: ProviderTwilio, Err: err}
	}
	if status == http.StatusNotFound {
		return CallDetail{}, &NotFoundError{Provider: ProviderTwilio, ExternalCallID: externalCallID}
	}
	if status != http.StatusOK {
		return CallDetail{}, &ConnectionError{Provider: ProviderTwilio, Err: fmt.Errorf("status %d: %s", status, vendorReason(body))}
	}

	var call twilioCall
	if err := json.Unmarshal(body, &call); err != nil {
		return CallDetail{}, &ConnectionError{Provider: ProviderTwilio, Err: err}
	}
	dur, _ := strconv.Atoi(call.Duration)
	return CallDetail{Status: call.Status, DurationSeconds: dur, From: call.From, To: call.To}, nil
}

func (p *TwilioProvider) CheckHealth(ctx context.Context, creds Credentials) bool {
	_, err := p.TestConnection(ctx, creds)
	return err == nil
}

func twilioAuth(creds Credentials) (sid, token string, err error) {
	sid, err = creds.get("account_sid")
	if err != nil {
		return "", "", err
	}
	token, err = creds.get("auth_token")
	if err != nil {
		return "", "", err
	}
	return sid, token, nil
}
