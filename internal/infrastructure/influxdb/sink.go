package influxdb

import (
	"context"

	"github.com/nerrad567/gray-twin/internal/notify"
)

// Sink is a notify.Listener forwarding DATA events to InfluxDB.
type Sink struct {
	client *Client
}

// NewSink creates a sink writing through client.
func NewSink(client *Client) *Sink {
	return &Sink{client: client}
}

// Patterns returns the topic patterns the sink should be subscribed to.
func (s *Sink) Patterns() []string {
	return []string{string(notify.EventData) + "/#"}
}

// Notify implements notify.Listener. Writes are asynchronous, so failures
// surface through the client's error callback rather than here.
func (s *Sink) Notify(_ context.Context, ev notify.Event) error {
	s.client.WriteResourceValue(ev)
	return nil
}
