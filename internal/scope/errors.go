package scope

import "errors"

// Programmer-misuse errors. These indicate a bug in the caller and are never
// transient.
var (
	// ErrInvalidState is returned when a handle is used after invalidation.
	ErrInvalidState = errors.New("scope: handle is no longer active")

	// ErrCrossContextAccess is returned when a handle is used from an
	// execution context other than the one that created it.
	ErrCrossContextAccess = errors.New("scope: handle used from a foreign execution context")

	// ErrAlreadyBuilt is returned when a builder's Build step runs twice.
	ErrAlreadyBuilt = errors.New("scope: builder already built")
)
