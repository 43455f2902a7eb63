package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gray-twin/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-twin/internal/notify"
)

// Relay republishes committed notifications on MQTT.
type Relay struct {
	client   MQTTClient
	topics   mqtt.Topics
	qos      byte
	retain   bool
	patterns []string
}

// RelayOptions configures a Relay.
type RelayOptions struct {
	Client MQTTClient
	Topics mqtt.Topics
	QoS    byte

	// Retain publishes DATA events retained so late subscribers get the
	// last value of each resource.
	Retain bool

	// Patterns are the notification patterns to relay. Empty relays
	// everything.
	Patterns []string
}

// NewRelay creates a relay.
func NewRelay(opts RelayOptions) (*Relay, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("%w: client is required", ErrNilDependency)
	}
	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = []string{
			string(notify.EventLifecycle) + "/#",
			string(notify.EventData) + "/#",
			string(notify.EventMetadata) + "/#",
		}
	}
	return &Relay{
		client:   opts.Client,
		topics:   opts.Topics,
		qos:      opts.QoS,
		retain:   opts.Retain,
		patterns: patterns,
	}, nil
}

// Patterns returns the notification patterns the relay should be
// subscribed to.
func (r *Relay) Patterns() []string {
	return r.patterns
}

// Notify implements notify.Listener.
func (r *Relay) Notify(_ context.Context, ev notify.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", ev.ID, err)
	}
	retained := r.retain && ev.Type == notify.EventData
	if err := r.client.Publish(r.topics.Event(ev.Topic), payload, r.qos, retained); err != nil {
		return fmt.Errorf("relaying %s: %w", ev.Topic, err)
	}
	return nil
}
