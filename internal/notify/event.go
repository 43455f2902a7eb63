package notify

import (
	"strings"
	"time"
)

// EventType is the top-level topic segment of an event.
type EventType string

// Event types.
const (
	EventLifecycle EventType = "LIFECYCLE"
	EventData      EventType = "DATA"
	EventMetadata  EventType = "METADATA"
)

// LifecycleStatus describes a structural change.
type LifecycleStatus string

// Lifecycle statuses.
const (
	ProviderCreated LifecycleStatus = "PROVIDER_CREATED"
	ProviderDeleted LifecycleStatus = "PROVIDER_DELETED"
	ServiceCreated  LifecycleStatus = "SERVICE_CREATED"
	ServiceDeleted  LifecycleStatus = "SERVICE_DELETED"
	ResourceCreated LifecycleStatus = "RESOURCE_CREATED"
	ResourceDeleted LifecycleStatus = "RESOURCE_DELETED"
)

// Ref names the twin element an event is about. Service and Resource are
// empty for provider-level lifecycle events.
type Ref struct {
	ModelPackageURI string `json:"model_package_uri,omitempty"`
	Model           string `json:"model,omitempty"`
	Provider        string `json:"provider"`
	Service         string `json:"service,omitempty"`
	Resource        string `json:"resource,omitempty"`
}

// Event is a typed notification delivered to listeners.
//
// Values are plain Go values (as produced by twin.Value.Interface) so events
// can be serialised without knowing the twin types.
type Event struct {
	ID    string    `json:"id"`
	Type  EventType `json:"type"`
	Topic string    `json:"topic"`
	Ref
	Status      LifecycleStatus `json:"status,omitempty"`
	ValueKind   string          `json:"value_kind,omitempty"`
	OldValue    any             `json:"old_value,omitempty"`
	NewValue    any             `json:"new_value,omitempty"`
	OldMetadata map[string]any  `json:"old_metadata,omitempty"`
	NewMetadata map[string]any  `json:"new_metadata,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Topics provides builders for notification topics.
//
//	notify.Topics{}.Data("sensor1", "env", "temp")
//	// Returns: "DATA/sensor1/env/temp"
type Topics struct{}

// Lifecycle returns the lifecycle topic for a provider, service or resource.
// Trailing empty names are omitted.
func (Topics) Lifecycle(provider, service, resource string) string {
	return join(EventLifecycle, provider, service, resource)
}

// Data returns the value-change topic of a resource.
func (Topics) Data(provider, service, resource string) string {
	return join(EventData, provider, service, resource)
}

// Metadata returns the metadata-change topic of a resource.
func (Topics) Metadata(provider, service, resource string) string {
	return join(EventMetadata, provider, service, resource)
}

func join(t EventType, parts ...string) string {
	var b strings.Builder
	b.WriteString(string(t))
	for _, p := range parts {
		if p == "" {
			break
		}
		b.WriteByte('/')
		b.WriteString(p)
	}
	return b.String()
}
