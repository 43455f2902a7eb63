package mqtt

import (
	"fmt"
	"sort"
	"sync"
)

// subscription is what Client needs to re-issue a subscription after a
// reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// subscriptionSet tracks active subscriptions by topic filter.
type subscriptionSet struct {
	mu      sync.RWMutex
	entries map[string]subscription
}

func (s *subscriptionSet) put(sub subscription) {
	s.mu.Lock()
	s.entries[sub.topic] = sub
	s.mu.Unlock()
}

func (s *subscriptionSet) remove(topic string) {
	s.mu.Lock()
	delete(s.entries, topic)
	s.mu.Unlock()
}

func (s *subscriptionSet) has(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[topic]
	return ok
}

// all returns the subscriptions ordered by topic.
func (s *subscriptionSet) all() []subscription {
	s.mu.RLock()
	out := make([]subscription, 0, len(s.entries))
	for _, sub := range s.entries {
		out = append(out, sub)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].topic < out[j].topic })
	return out
}

func (s *subscriptionSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Subscribe registers handler for topic, which may contain + and #
// wildcards. The subscription is restored automatically after reconnects.
// Subscribing again to the same filter replaces the handler.
//
// Parameters:
//   - topic: Topic filter, e.g. mqtt.Topics{}.AllUpdates()
//   - qos: Maximum QoS of delivered messages
//   - handler: Called for each message
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected, or
//     ErrSubscribeFailed wrapping the broker's answer
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	sub := subscription{topic: topic, qos: qos, handler: handler}
	c.subs.put(sub)
	if err := await(c.conn.Subscribe(topic, qos, c.dispatch(handler)), ackTimeout, ErrSubscribeFailed); err != nil {
		c.subs.remove(topic)
		return err
	}
	return nil
}

// Unsubscribe removes the subscription for topic. Messages already in
// flight may still reach the handler.
//
// Returns:
//   - error: ErrInvalidTopic, ErrNotConnected, or ErrUnsubscribeFailed
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subs.remove(topic)
	return await(c.conn.Unsubscribe(topic), ackTimeout, ErrUnsubscribeFailed)
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	return c.subs.len()
}

// HasSubscription reports whether topic is subscribed. The comparison is
// on the filter string, not on wildcard matching.
func (c *Client) HasSubscription(topic string) bool {
	return c.subs.has(topic)
}
