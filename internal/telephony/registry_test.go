package telephony

import (
	"errors"
	"testing"
)

func TestRegistry_GetKnownProvider(t *testing.T) {
	r := NewRegistry(NewTwilioProvider(), NewExotelProvider(), NewVoiceBaseProvider(), NewCustomProvider())

	p, err := r.Get(ProviderTwilio)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if p.Name() != ProviderTwilio {
		t.Fatalf("expected twilio, got %q", p.Name())
	}
	if len(r.Names()) != 4 {
		t.Fatalf("expected 4 providers, got %d", len(r.Names()))
	}
}

func TestRegistry_RejectsUnknownProvider(t *testing.T) {
	r := NewRegistry(NewTwilioProvider())

	_, err := r.Get(ProviderName("plivo"))
	if err == nil {
		t.Fatalf("expected error")
	}
	var unknown *UnknownProviderError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownProviderError, got %T", err)
	}
}

func TestParseProviderName(t *testing.T) {
	name, err := ParseProviderName("  Twilio ")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if name != ProviderTwilio {
		t.Fatalf("expected twilio, got %q", name)
	}

	if _, err := ParseProviderName("asterisk"); err == nil {
		t.Fatalf("expected error for unsupported vendor")
	}
}
