package gateway

import "errors"

// Gateway errors. Misuse errors (ErrReentrantWait, and the scope errors
// surfaced through handles) indicate a bug in the caller and must not be
// retried.
var (
	// ErrGatewayStopped is returned for commands submitted after Stop, or
	// still queued when the gateway stopped.
	ErrGatewayStopped = errors.New("gateway: stopped")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("gateway: not started")

	// ErrCancelled is returned by a future cancelled before it ran.
	ErrCancelled = errors.New("gateway: command cancelled")

	// ErrCommandPanic is returned when a command panicked. Its mutations
	// were rolled back.
	ErrCommandPanic = errors.New("gateway: command panicked")

	// ErrReentrantWait is returned when a command waits on a future of the
	// same gateway. The worker would otherwise wait on itself forever.
	ErrReentrantWait = errors.New("gateway: wait on own gateway from inside a command")

	// ErrQueueFull is returned when a command submits another command while
	// the queue is full.
	ErrQueueFull = errors.New("gateway: queue full")

	// ErrStopTimeout is returned when the worker did not finish in time.
	ErrStopTimeout = errors.New("gateway: stop timed out")
)
