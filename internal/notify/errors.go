package notify

import "errors"

var (
	// ErrCompleted is returned when recording into an accumulator that has
	// already produced its events.
	ErrCompleted = errors.New("notify: accumulator already completed")

	// ErrOutOfOrder is returned when a value or metadata update for the same
	// resource is recorded with an older timestamp than a previous one.
	ErrOutOfOrder = errors.New("notify: updates out of temporal order")

	// ErrInvalidPattern is returned for empty subscription patterns.
	ErrInvalidPattern = errors.New("notify: invalid topic pattern")

	// ErrNilListener is returned when subscribing without a listener.
	ErrNilListener = errors.New("notify: listener cannot be nil")

	// ErrRouterClosed is returned when subscribing to a stopped router.
	ErrRouterClosed = errors.New("notify: router closed")
)
