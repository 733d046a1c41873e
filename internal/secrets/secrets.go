// Package secrets encrypts per-tenant provider credentials at rest.
//
// Blobs use authenticated encryption (ChaCha20-Poly1305) with a process-wide
// key loaded once at startup. Plaintext credential values must never appear
// in logs at any level.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// blobVersion is the first byte of every encrypted blob. It leaves room for
// key rotation via a key-id byte in a later version.
const blobVersion = 0x01

// DecryptionError means the blob is malformed, tampered with, or encrypted
// under a different key. Callers treat it as a provider failure; it must
// never crash the process.
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("secrets: decryption failed: %v", e.Err)
}

func (e *DecryptionError) Unwrap() error { return e.Err }

type Store struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
		Overhead() int
	}
}

// NewStore builds a credential store from a 32-byte key.
func NewStore(key []byte) (*Store, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}
	return &Store{aead: aead}, nil
}

// Encrypt serializes and seals a credential map into an opaque blob
// (base64 of version || nonce || ciphertext).
func (s *Store) Encrypt(creds map[string]string) (string, error) {
	if len(creds) == 0 {
		return "", errors.New("secrets: credentials are required")
	}

	plaintext, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	blob := make([]byte, 0, 1+len(nonce)+len(plaintext)+s.aead.Overhead())
	blob = append(blob, blobVersion)
	blob = append(blob, nonce...)
	blob = s.aead.Seal(blob, nonce, plaintext, nil)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt opens a blob produced by Encrypt.
func (s *Store) Decrypt(blob string) (map[string]string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, &DecryptionError{Err: err}
	}
	if len(raw) < 1+s.aead.NonceSize()+s.aead.Overhead() {
		return nil, &DecryptionError{Err: errors.New("blob too short")}
	}
	if raw[0] != blobVersion {
		return nil, &DecryptionError{Err: fmt.Errorf("unsupported blob version %d", raw[0])}
	}

	nonce := raw[1 : 1+s.aead.NonceSize()]
	ciphertext := raw[1+s.aead.NonceSize():]

	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &DecryptionError{Err: err}
	}

	var creds map[string]string
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, &DecryptionError{Err: err}
	}
	return creds, nil
}
