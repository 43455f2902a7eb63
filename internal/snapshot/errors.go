package snapshot

import "errors"

var (
	// ErrInvalidLevel is returned for unknown GET level names.
	ErrInvalidLevel = errors.New("snapshot: invalid get level")

	// ErrPullTimeout is the cause of a *twin.PullError when the callback
	// overran the pull timeout.
	ErrPullTimeout = errors.New("snapshot: pull timed out")
)
