// Package apperr defines the error taxonomy shared by the API, the
// attendance engine, and the client. Callers classify failures with
// errors.As rather than string matching.
package apperr

import "fmt"

// TransportError means the envelope was malformed, decryption failed, or
// the backend was unreachable. Safe to retry. It is never silently masked
// as success: a body that cannot be opened is an error, not passthrough.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport: %s failed", e.Op)
	}
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError means the credential is missing, invalid, or expired. The
// client reacts by clearing its token store; it is not retried.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "auth: " + e.Reason }

// ValidationError is locally detected malformed input. No network call is
// made for input that fails validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// ConflictError means an operation would violate the one-open-session-per-
// child invariant. Retrying the same request cannot succeed; the state has
// to change first.
type ConflictError struct {
	ChildID string
	Reason  string
}

func (e *ConflictError) Error() string {
	if e.ChildID == "" {
		return "conflict: " + e.Reason
	}
	return fmt.Sprintf("conflict: child %s: %s", e.ChildID, e.Reason)
}

// NotFoundError means a selector matched no open session or a referenced
// entity no longer exists.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Kind + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}
