package ark

import "errors"

// Kind is a stable category for programmatic error handling.
//
// These categories are intended to remain stable across versions.
// Callers should branch on Kind rather than matching error strings.
//
// NOTE: Error() strings are intentionally kept human-readable and may evolve.
// Use errors.As to extract *Error for structured handling.
type Kind string

const (
	// KindInvalidSecret marks a malformed root secret. Fatal to the calling
	// operation, never retryable.
	KindInvalidSecret Kind = "InvalidSecret"

	// KindMalformedObjectType marks an invalid vault object-type selection.
	// The caller must fix the input.
	KindMalformedObjectType Kind = "MalformedObjectType"

	// KindUnauthorized marks a signature or key-category mismatch. Never
	// retried with the same key.
	KindUnauthorized Kind = "Unauthorized"

	// KindConflict marks a stale pointer sequence number. The caller must
	// re-resolve before retrying the higher-level operation.
	KindConflict Kind = "Conflict"

	// KindNotFound marks a missing pointer or snapshot.
	KindNotFound Kind = "NotFound"

	// KindNetwork marks a transient substrate failure. Retried internally up
	// to policy limits, then surfaced.
	KindNetwork Kind = "Network"

	// KindInconsistentManifest marks a manifest that violates its own
	// invariants on resolve. Surfaced, never silently repaired: it implies
	// either corruption or a protocol bug.
	KindInconsistentManifest Kind = "InconsistentManifest"

	KindInternal Kind = "Internal"
)

// Error is the module's structured error type.
//
// Op names the operation that failed (e.g. "manifeststore.Publish").
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Op == "" {
		return e.Message
	}
	return e.Op + ": " + e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewError returns a structured error with the given kind.
func NewError(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Message: msg}
}

// WrapError returns a structured error wrapping cause.
func WrapError(kind Kind, op, msg string, cause error) error {
	if cause == nil {
		return NewError(kind, op, msg)
	}
	return &Error{Kind: kind, Op: op, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// ErrKind returns the Kind for a structured error, or "" if unknown.
func ErrKind(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}

// Retryable reports whether the error category permits a retry without new
// input. Only transient network failures qualify.
func Retryable(err error) bool {
	return IsKind(err, KindNetwork)
}
