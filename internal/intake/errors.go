package intake

import "errors"

var (
	// ErrMissingField is returned when an update lacks provider, service or
	// resource.
	ErrMissingField = errors.New("intake: missing required field")

	// ErrInvalidPayload is returned when the wire payload cannot be decoded.
	ErrInvalidPayload = errors.New("intake: invalid payload")

	// ErrEmptyBatch is returned when Push is called with no updates.
	ErrEmptyBatch = errors.New("intake: empty batch")
)
