package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes of the Gray Twin MQTT hierarchy.
//
// Southbound updates and relayed events live under configurable prefixes;
// the defaults below match config.yaml.
const (
	// TopicPrefix is the base for all Gray Twin topics.
	TopicPrefix = "graytwin"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graytwin/system"

	// DefaultUpdatePrefix is the base of southbound update topics.
	DefaultUpdatePrefix = "graytwin/updates"

	// DefaultEventPrefix is the base of relayed notification topics.
	DefaultEventPrefix = "graytwin/events"
)

// Topics provides builders for Gray Twin MQTT topics.
// The zero value uses the default prefixes.
//
//	topics := mqtt.Topics{}
//	topic := topics.Update("sensor1", "env", "temp")
//	// Returns: "graytwin/updates/sensor1/env/temp"
type Topics struct {
	// UpdatePrefix overrides DefaultUpdatePrefix.
	UpdatePrefix string
	// EventPrefix overrides DefaultEventPrefix.
	EventPrefix string
}

func (t Topics) updates() string {
	if t.UpdatePrefix != "" {
		return strings.TrimSuffix(t.UpdatePrefix, "/")
	}
	return DefaultUpdatePrefix
}

func (t Topics) events() string {
	if t.EventPrefix != "" {
		return strings.TrimSuffix(t.EventPrefix, "/")
	}
	return DefaultEventPrefix
}

// =============================================================================
// Southbound Topics
// =============================================================================

// Updates returns the batch update topic. Payloads are full JSON update
// records or arrays of them.
//
// Example: graytwin/updates
func (t Topics) Updates() string {
	return t.updates()
}

// Update returns the value update topic of one resource. The payload may be
// a bare JSON value or an update record without a path.
//
// Example: graytwin/updates/sensor1/env/temp
func (t Topics) Update(provider, service, resource string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.updates(), provider, service, resource)
}

// ParseUpdate splits a topic received under the update prefix.
//
// Returns:
//   - provider, service, resource: Path segments, all empty for the batch topic
//   - ok: false if the topic is not an update topic
func (t Topics) ParseUpdate(topic string) (provider, service, resource string, ok bool) {
	prefix := t.updates()
	if topic == prefix {
		return "", "", "", true
	}
	rest, found := strings.CutPrefix(topic, prefix+"/")
	if !found {
		return "", "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// =============================================================================
// Northbound Topics
// =============================================================================

// Event returns the relay topic of a notification topic.
//
// Example: graytwin/events/DATA/sensor1/env/temp
func (t Topics) Event(notificationTopic string) string {
	return t.events() + "/" + notificationTopic
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic.
//
// Example: graytwin/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllUpdates returns a pattern matching the batch topic and every
// per-resource update topic.
//
// Pattern: graytwin/updates/#
func (t Topics) AllUpdates() string {
	return t.updates() + "/#"
}

// AllEvents returns a pattern matching every relayed notification.
//
// Pattern: graytwin/events/#
func (t Topics) AllEvents() string {
	return t.events() + "/#"
}

// AllTopics returns a pattern matching all Gray Twin topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: graytwin/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
