package shared

import "errors"

// Pipeline-wide error classes. Module errors wrap one of these with %w so the
// HTTP layer can map them without knowing module internals.
var (
	// ErrValidation indicates missing or inconsistent input; nothing was persisted.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the caller does not own the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidState indicates a transition not allowed from the current status.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrConcurrentModification indicates a compare-and-set lost a race; retry with fresh data.
	ErrConcurrentModification = errors.New("concurrent modification")
)
