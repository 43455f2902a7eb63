package httppull

import "errors"

// Domain errors for the HTTP pull package.
var (
	// ErrBadStatus is returned for non-2xx responses.
	ErrBadStatus = errors.New("httppull: unexpected status")

	// ErrFieldNotFound is returned when the configured field is missing
	// from the response.
	ErrFieldNotFound = errors.New("httppull: field not found")

	// ErrResponseTooLarge is returned when a body exceeds the read limit.
	ErrResponseTooLarge = errors.New("httppull: response too large")
)
