package mqttbridge

import "errors"

// Domain errors for the MQTT bridge package.
var (
	// ErrUnknownTopic is returned for messages outside the update hierarchy.
	ErrUnknownTopic = errors.New("mqttbridge: topic is not an update topic")

	// ErrNilDependency is returned when a required collaborator is missing.
	ErrNilDependency = errors.New("mqttbridge: missing dependency")

	// ErrNotStarted is returned by Stop before Start.
	ErrNotStarted = errors.New("mqttbridge: not started")
)
