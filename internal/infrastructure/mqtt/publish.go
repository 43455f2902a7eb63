package mqtt

import (
	"fmt"
	"strings"
)

// Publish sends payload to topic and waits for the broker's
// acknowledgement (for QoS 1 and 2).
//
// Retained messages are used for state a late subscriber needs
// immediately: the gateway status and, when the relay is configured to,
// the last DATA event of each resource.
//
// Parameters:
//   - topic: Concrete topic; wildcards are rejected
//   - payload: Message body, at most 1MB
//   - qos: 0, 1 or 2
//   - retained: Whether the broker keeps the message for new subscribers
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrPayloadTooLarge,
//     ErrNotConnected, or ErrPublishFailed wrapping the broker's answer
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	return await(c.conn.Publish(topic, qos, retained, payload), ackTimeout, ErrPublishFailed)
}
