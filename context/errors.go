package context

import "errors"

// Sentinel errors for manager operations.
var (
	// ErrNotFound indicates the identifier is not present in the session.
	ErrNotFound = errors.New("entry not found")

	// ErrPinLimitExceeded indicates the pinned-entry cap has been reached.
	// Pinning never evicts another pin to make room.
	ErrPinLimitExceeded = errors.New("pin limit exceeded")
)
