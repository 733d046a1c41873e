package secrets

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	s, err := NewStore(key)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return s
}

func TestNewStore_RejectsBadKeySize(t *testing.T) {
	if _, err := NewStore(make([]byte, 16)); err == nil {
		t.Fatalf("expected error for 16-byte key")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	s := testStore(t)

	creds := map[string]string{
		"account_sid": "AC123",
		"auth_token":  "secret-token",
	}
	blob, err := s.Encrypt(creds)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if strings.Contains(blob, "secret-token") {
		t.Fatalf("blob leaks plaintext")
	}

	got, err := s.Decrypt(blob)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if len(got) != len(creds) {
		t.Fatalf("expected %d entries, got %d", len(creds), len(got))
	}
	for k, v := range creds {
		if got[k] != v {
			t.Fatalf("round trip mismatch for %q: %q != %q", k, got[k], v)
		}
	}
}

func TestEncrypt_NoncesDiffer(t *testing.T) {
	s := testStore(t)
	creds := map[string]string{"k": "v"}

	a, _ := s.Encrypt(creds)
	b, _ := s.Encrypt(creds)
	if a == b {
		t.Fatalf("expected distinct blobs for identical plaintext")
	}
}

func TestDecrypt_TamperedBlobFailsTyped(t *testing.T) {
	s := testStore(t)
	blob, _ := s.Encrypt(map[string]string{"k": "v"})

	raw, _ := base64.StdEncoding.DecodeString(blob)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err := s.Decrypt(tampered)
	var decErr *DecryptionError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecryptionError, got %v", err)
	}
}

func TestDecrypt_WrongKeyFailsTyped(t *testing.T) {
	s := testStore(t)
	blob, _ := s.Encrypt(map[string]string{"k": "v"})

	other, err := NewStore(make([]byte, 32))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	_, err = other.Decrypt(blob)
	var decErr *DecryptionError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecryptionError, got %v", err)
	}
}

func TestDecrypt_GarbageFailsTyped(t *testing.T) {
	s := testStore(t)
	for _, blob := range []string{"", "not-base64!!", base64.StdEncoding.EncodeToString([]byte("short"))} {
		_, err := s.Decrypt(blob)
		var decErr *DecryptionError
		if !errors.As(err, &decErr) {
			t.Fatalf("expected DecryptionError for %q, got %v", blob, err)
		}
	}
}
