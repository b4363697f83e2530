package storage

import "errors"

var (
	ErrNotFound    = errors.New("storage: not found")
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: cid mismatch")
	ErrImmutable   = errors.New("storage: immutable object mismatch")

	// ErrConflict is the server-side rejection of a pointer update whose
	// sequence number is not previous+1.
	ErrConflict = errors.New("storage: pointer sequence conflict")

	// ErrNetwork marks a transient transport failure. It is the only storage
	// error callers may retry without new input.
	ErrNetwork = errors.New("storage: network failure")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
func IsNetwork(err error) bool  { return errors.Is(err, ErrNetwork) }
