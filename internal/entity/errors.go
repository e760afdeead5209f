package entity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the taxonomy tag every error surfaced past the pipeline
// boundary carries, together with a human-readable remediation hint.
type ErrorKind string

const (
	KindValidation           ErrorKind = "VALIDATION"
	KindIntegrity            ErrorKind = "INTEGRITY"
	KindInsufficientFunds    ErrorKind = "INSUFFICIENT_FUNDS"
	KindInsufficientResource ErrorKind = "INSUFFICIENT_RESOURCE"
	KindNetwork              ErrorKind = "NETWORK"
	KindTimeout              ErrorKind = "TIMEOUT"
	KindUnknownOwner         ErrorKind = "UNKNOWN_OWNER"
)

// EngineError wraps an underlying cause with the taxonomy tag and hint.
// Raw transport-level error text is never surfaced without this mapping.
type EngineError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Hint    string    `json:"hint,omitempty"`
	Err     error     `json:"-"`
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewValidationError reports malformed input. Never retried.
func NewValidationError(msg string) *EngineError {
	return &EngineError{Kind: KindValidation, Message: msg, Hint: "check the request parameters"}
}

// NewIntegrityError reports a key/address mismatch. Fatal, never retried.
func NewIntegrityError(msg string) *EngineError {
	return &EngineError{Kind: KindIntegrity, Message: msg, Hint: "contact support; the wallet record is corrupt"}
}

// NewInsufficientFundsError reports a balance shortfall. Retrying without a
// top-up only wastes resources, so it is never retried automatically.
func NewInsufficientFundsError(msg string) *EngineError {
	return &EngineError{Kind: KindInsufficientFunds, Message: msg, Hint: "top up the wallet before retrying"}
}

// NewInsufficientResourceError reports a gas/fee shortfall.
func NewInsufficientResourceError(msg string, err error) *EngineError {
	return &EngineError{Kind: KindInsufficientResource, Message: msg, Hint: "top up the wallet's native balance to cover network fees", Err: err}
}

// NewNetworkError reports a transient RPC failure.
func NewNetworkError(msg string, err error) *EngineError {
	return &EngineError{Kind: KindNetwork, Message: msg, Hint: "transient network failure; retry with backoff", Err: err}
}

// NewTimeoutError reports that confirmation was not observed within the bound.
// The transaction is still pending, not failed.
func NewTimeoutError(msg string) *EngineError {
	return &EngineError{Kind: KindTimeout, Message: msg, Hint: "the transaction is still pending; check again later"}
}

// NewUnknownOwnerError reports that no wallet exists for the owner.
func NewUnknownOwnerError(ownerID string) *EngineError {
	return &EngineError{Kind: KindUnknownOwner, Message: fmt.Sprintf("no wallet provisioned for owner %q", ownerID), Hint: "provision a wallet first"}
}

// KindOf extracts the taxonomy tag, or empty string for untagged errors.
func KindOf(err error) ErrorKind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}

// IsKind reports whether err carries the given taxonomy tag.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// ClassifyBroadcastError maps a raw RPC broadcast failure onto the taxonomy.
// Node error strings are the only signal available at this boundary.
func ClassifyBroadcastError(err error) *EngineError {
	if err == nil {
		return nil
	}
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "insufficient funds"),
		strings.Contains(text, "insufficient balance"):
		return &EngineError{
			Kind:    KindInsufficientFunds,
			Message: "the wallet cannot cover the transaction value plus fees",
			Hint:    "top up the wallet before retrying",
			Err:     err,
		}
	case strings.Contains(text, "intrinsic gas too low"),
		strings.Contains(text, "gas required exceeds"),
		strings.Contains(text, "out of gas"),
		strings.Contains(text, "max fee per gas"),
		strings.Contains(text, "underpriced"):
		return NewInsufficientResourceError("the attached gas does not cover the operation", err)
	default:
		return NewNetworkError("broadcast failed", err)
	}
}
