package telephony

import "fmt"

// Adapter error taxonomy. The router decides retry/failover based on these;
// adapters only classify.

// ConnectionError means the vendor was unreachable or rejected the
// credentials during a connectivity test.
type ConnectionError struct {
	Provider ProviderName
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("telephony: %s connection failed: %v", e.Provider, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RejectionError means the vendor explicitly declined an operation
// (bad number, insufficient balance, auth failure).
type RejectionError struct {
	Provider   ProviderName
	StatusCode int
	Reason     string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("telephony: %s rejected the operation (status %d): %s", e.Provider, e.StatusCode, e.Reason)
}

// NotFoundError means the vendor does not know the referenced call.
type NotFoundError struct {
	Provider       ProviderName
	ExternalCallID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("telephony: %s call %s not found", e.Provider, e.ExternalCallID)
}

// UnknownProviderError means a vendor identifier outside the supported set
// reached the boundary.
type UnknownProviderError struct {
	Name string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("telephony: unknown provider %q", e.Name)
}
