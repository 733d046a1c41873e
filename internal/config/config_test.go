package config

import (
	"strings"
	"testing"
	"time"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func validConfig() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "callcenter"},
		Auth:  AuthConfig{JWTSecret: "secret"},
		Telephony: TelephonyConfig{
			CredentialKey: testKeyHex,
		},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_TelephonyDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Telephony.BreakerBackend != "memory" {
		t.Fatalf("expected memory backend default, got %q", c.Telephony.BreakerBackend)
	}
	if c.Telephony.BreakerFailureThreshold != 5 {
		t.Fatalf("expected threshold 5, got %d", c.Telephony.BreakerFailureThreshold)
	}
	if c.Telephony.BreakerResetTimeout != 60*time.Second {
		t.Fatalf("expected 60s reset, got %v", c.Telephony.BreakerResetTimeout)
	}
	if c.Telephony.TestTimeout != 10*time.Second || c.Telephony.CallTimeout != 30*time.Second {
		t.Fatalf("unexpected timeouts: %v / %v", c.Telephony.TestTimeout, c.Telephony.CallTimeout)
	}
}

func TestValidate_RedisBreakerRequiresRedisHost(t *testing.T) {
	c := validConfig()
	c.Telephony.BreakerBackend = "redis"
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "REDIS_HOST") {
		t.Fatalf("expected REDIS_HOST error, got %v", err)
	}
}

func TestCredentialKeyBytes_RejectsBadKey(t *testing.T) {
	tc := TelephonyConfig{CredentialKey: "not-hex"}
	if _, err := tc.CredentialKeyBytes(); err == nil {
		t.Fatalf("expected error for non-hex key")
	}
	tc = TelephonyConfig{CredentialKey: "abcd"}
	if _, err := tc.CredentialKeyBytes(); err == nil {
		t.Fatalf("expected error for short key")
	}
	tc = TelephonyConfig{CredentialKey: testKeyHex}
	key, err := tc.CredentialKeyBytes()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("expected 32 bytes, got %d", len(key))
	}
}
