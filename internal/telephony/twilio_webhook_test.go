package telephony

import (
	"context"
	"net/url"
	"testing"
)

func TestParseTwilioInboundForm(t *testing.T) {
	form := url.Values{}
	form.Set("CallSid", "CA1")
	form.Set("AccountSid", "AC1")
	form.Set("From", " +15550001111 ")
	form.Set("To", "+15550002222")
	form.Set("Direction", "inbound")

	payload := WebhookPayload{ContentType: "application/x-www-form-urlencoded", Body: []byte(form.Encode())}
	f, err := ParseTwilioInboundForm(payload)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if f.CallSid != "CA1" {
		t.Fatalf("expected CallSid CA1, got %q", f.CallSid)
	}
	if f.From != "+15550001111" {
		t.Fatalf("expected trimmed From, got %q", f.From)
	}
}

func TestParseTwilioInboundForm_MissingCallSid(t *testing.T) {
	payload := WebhookPayload{Body: []byte("From=%2B1&To=%2B2")}
	if _, err := ParseTwilioInboundForm(payload); err == nil {
		t.Fatalf("expected error for missing CallSid")
	}
}

func TestTwilio_HandleInboundCallNormalizes(t *testing.T) {
	form := url.Values{}
	form.Set("CallSid", "CA77")
	form.Set("From", "+15550001111")
	form.Set("To", "+15550002222")

	p := NewTwilioProvider()
	call, err := p.HandleInboundCall(context.Background(), WebhookPayload{Body: []byte(form.Encode())}, twilioCreds())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if call.ExternalCallID != "CA77" || call.Provider != ProviderTwilio || call.Direction != DirectionInbound {
		t.Fatalf("unexpected call: %+v", call)
	}
}
