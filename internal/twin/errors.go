package twin

import (
	"errors"
	"fmt"
)

// Domain errors for the twin package.
//
// Structural and type errors are local to one gateway command. The registry
// is left unchanged when any of them is returned:
//
//	if errors.Is(err, twin.ErrTypeMismatch) {
//	    // reject the update
//	}
var (
	// ErrModelConflict is returned when an explicit model contradicts the
	// model already assigned to a provider.
	ErrModelConflict = errors.New("twin: model conflict")

	// ErrTypeConflict is returned when a resource type hint contradicts the
	// type already fixed for that resource.
	ErrTypeConflict = errors.New("twin: type conflict")

	// ErrTypeMismatch is returned when a value is incompatible with the type
	// fixed for its resource.
	ErrTypeMismatch = errors.New("twin: type mismatch")

	// ErrProviderNotFound is returned when a provider name is unknown.
	ErrProviderNotFound = errors.New("twin: provider not found")

	// ErrServiceNotFound is returned when a service name is unknown.
	ErrServiceNotFound = errors.New("twin: service not found")

	// ErrResourceNotFound is returned when a resource name is unknown.
	ErrResourceNotFound = errors.New("twin: resource not found")

	// ErrProviderExists is returned when explicitly creating a provider
	// that already exists.
	ErrProviderExists = errors.New("twin: provider already exists")

	// ErrImplicitNotAllowed is returned when a frozen model is asked for a
	// service or resource it does not declare.
	ErrImplicitNotAllowed = errors.New("twin: model does not allow implicit elements")

	// ErrAdminService is returned when removing the admin service or one of
	// its resources.
	ErrAdminService = errors.New("twin: admin service cannot be removed")

	// ErrNotWritable is returned when setting a read-only resource.
	ErrNotWritable = errors.New("twin: resource is not writable")

	// ErrNotReadable is returned when reading a write-only resource.
	ErrNotReadable = errors.New("twin: resource is not readable")

	// ErrInvalidName is returned for empty names or names containing topic
	// separators or wildcards.
	ErrInvalidName = errors.New("twin: invalid name")

	// ErrInvalidKind is returned when a type name is not recognised.
	ErrInvalidKind = errors.New("twin: invalid value kind")

	// ErrPullFailure is matched by every *PullError.
	ErrPullFailure = errors.New("twin: pull failure")
)

// PullError reports a failed pull callback for one resource.
type PullError struct {
	Provider string
	Service  string
	Resource string
	Err      error
}

// Error implements error.
func (e *PullError) Error() string {
	return fmt.Sprintf("twin: pull %s/%s/%s: %v", e.Provider, e.Service, e.Resource, e.Err)
}

// Unwrap lets errors.Is match both ErrPullFailure and the callback error.
func (e *PullError) Unwrap() []error {
	return []error{ErrPullFailure, e.Err}
}
