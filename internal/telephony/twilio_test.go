package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func twilioCreds() Credentials {
	return Credentials{"account_sid": "AC123", "auth_token": "tok"}
}

func TestTwilio_TestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC123.json" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "tok" {
			t.Fatalf("expected basic auth with credentials")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sid":"AC123","friendly_name":"Acme","status":"active"}`))
	}))
	defer srv.Close()

	p := &TwilioProvider{BaseURL: srv.URL, Client: srv.Client()}
	meta, err := p.TestConnection(context.Background(), twilioCreds())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if meta.AccountID != "AC123" || meta.Name != "Acme" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestTwilio_TestConnectionAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Authentication Error"}`))
	}))
	defer srv.Close()

	p := &TwilioProvider{BaseURL: srv.URL, Client: srv.Client()}
	_, err := p.TestConnection(context.Background(), twilioCreds())
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if p.CheckHealth(context.Background(), twilioCreds()) {
		t.Fatalf("expected unhealthy")
	}
}

func TestTwilio_InitiateOutboundCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostFormValue("To") != "+15550001111" || r.PostFormValue("From") != "+15550002222" {
			t.Fatalf("unexpected form: %v", r.PostForm)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"CA9","status":"queued"}`))
	}))
	defer srv.Close()

	p := &TwilioProvider{BaseURL: srv.URL, Client: srv.Client()}
	out, err := p.InitiateOutboundCall(context.Background(), OutboundCallRequest{
		ToNumber:    "+15550001111",
		FromNumber:  "+15550002222",
		CallbackURL: "https://example.com/cb",
	}, twilioCreds())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.ExternalCallID != "CA9" || out.Status != "queued" {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestTwilio_OutboundRejectionIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Invalid 'To' number"}`))
	}))
	defer srv.Close()

	p := &TwilioProvider{BaseURL: srv.URL, Client: srv.Client()}
	_, err := p.InitiateOutboundCall(context.Background(), OutboundCallRequest{ToNumber: "bad", FromNumber: "+1"}, twilioCreds())
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("expected RejectionError, got %v", err)
	}
	if rej.Reason != "Invalid 'To' number" {
		t.Fatalf("unexpected reason %q", rej.Reason)
	}
}

func TestTwilio_EndCallNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := &TwilioProvider{BaseURL: srv.URL, Client: srv.Client()}
	err := p.EndCall(context.Background(), "CA404", twilioCreds())
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if notFound.ExternalCallID != "CA404" {
		t.Fatalf("unexpected id %q", notFound.ExternalCallID)
	}
}

func TestTwilio_GetCallDetailsParsesStringDuration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sid":"CA9","status":"completed","from":"+1","to":"+2","duration":"42"}`))
	}))
	defer srv.Close()

	p := &TwilioProvider{BaseURL: srv.URL, Client: srv.Client()}
	d, err := p.GetCallDetails(context.Background(), "CA9", twilioCreds())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if d.DurationSeconds != 42 || d.Status != "completed" {
		t.Fatalf("unexpected detail: %+v", d)
	}
}

func TestTwilio_MissingCredentials(t *testing.T) {
	p := NewTwilioProvider()
	_, err := p.TestConnection(context.Background(), Credentials{"account_sid": "AC123"})
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError for missing auth_token, got %v", err)
	}
}
