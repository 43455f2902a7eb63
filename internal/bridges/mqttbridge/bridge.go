package mqttbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-twin/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-twin/internal/intake"
)

// defaultPushTimeout bounds how long one message may wait for its command.
const defaultPushTimeout = 5 * time.Second

// MQTTClient is the interface for MQTT operations.
// *mqtt.Client satisfies it; tests use a mock.
type MQTTClient interface {
	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// Unsubscribe removes a subscription.
	Unsubscribe(topic string) error

	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Pusher applies decoded updates. *intake.Pusher satisfies it through
// PusherFunc in production wiring.
type Pusher interface {
	Push(ctx context.Context, updates ...intake.Update) (intake.Result, error)
}

// PusherFunc adapts a function to the Pusher interface.
type PusherFunc func(ctx context.Context, updates ...intake.Update) (intake.Result, error)

// Push calls f(ctx, updates...).
func (f PusherFunc) Push(ctx context.Context, updates ...intake.Update) (intake.Result, error) {
	return f(ctx, updates...)
}

// FromIntake wraps an intake.Pusher, waiting for each batch to complete.
func FromIntake(p *intake.Pusher) Pusher {
	return PusherFunc(func(ctx context.Context, updates ...intake.Update) (intake.Result, error) {
		return p.Push(ctx, updates...).Wait(ctx)
	})
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds configuration for creating a bridge.
type Options struct {
	Client MQTTClient
	Pusher Pusher

	// Topics selects the update prefix.
	Topics mqtt.Topics

	// QoS of the update subscription.
	QoS byte

	// PushTimeout bounds each message's command. Zero uses 5s.
	PushTimeout time.Duration
}

// Metrics counts bridge traffic.
type Metrics struct {
	Received uint64 `json:"received"`
	Applied  uint64 `json:"applied"`
	Rejected uint64 `json:"rejected"`
}

// Bridge turns MQTT update messages into twin updates.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	client  MQTTClient
	pusher  Pusher
	topics  mqtt.Topics
	qos     byte
	timeout time.Duration

	// ctx is cancelled on Stop so in-flight pushes give up.
	ctx       context.Context
	ctxCancel context.CancelFunc
	mu        sync.Mutex

	received atomic.Uint64
	applied  atomic.Uint64
	rejected atomic.Uint64

	logger Logger
}

// NewBridge creates a bridge. Call Start to subscribe.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.Client == nil || opts.Pusher == nil {
		return nil, fmt.Errorf("%w: client and pusher are required", ErrNilDependency)
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = defaultPushTimeout
	}
	return &Bridge{
		client:  opts.Client,
		pusher:  opts.Pusher,
		topics:  opts.Topics,
		qos:     opts.QoS,
		timeout: opts.PushTimeout,
		logger:  noopLogger{},
	}, nil
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Start subscribes to the update topics. Messages are processed until ctx
// is cancelled or Stop is called.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	b.ctx, b.ctxCancel = context.WithCancel(ctx)
	b.mu.Unlock()

	pattern := b.topics.AllUpdates()
	if err := b.client.Subscribe(pattern, b.qos, b.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", pattern, err)
	}
	b.logger.Info("mqtt update bridge started", "pattern", pattern)
	return nil
}

// Stop unsubscribes and cancels in-flight pushes.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	cancel := b.ctxCancel
	b.mu.Unlock()
	if cancel == nil {
		return ErrNotStarted
	}
	cancel()
	return b.client.Unsubscribe(b.topics.AllUpdates())
}

func (b *Bridge) context() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return context.Background()
	}
	return b.ctx
}

// HandleMessage decodes one message and pushes it as a single batch.
// It implements mqtt.MessageHandler.
func (b *Bridge) HandleMessage(topic string, payload []byte) error {
	b.received.Add(1)

	updates, err := b.decode(topic, payload)
	if err != nil {
		b.rejected.Add(1)
		return err
	}

	ctx, cancel := context.WithTimeout(b.context(), b.timeout)
	defer cancel()

	res, err := b.pusher.Push(ctx, updates...)
	if err != nil {
		b.rejected.Add(1)
		return fmt.Errorf("pushing %s: %w", topic, err)
	}
	b.applied.Add(1)
	b.logger.Debug("mqtt updates applied", "topic", topic, "changed", res.Changed, "skipped", res.Skipped)
	return nil
}

func (b *Bridge) decode(topic string, payload []byte) ([]intake.Update, error) {
	provider, service, resource, ok := b.topics.ParseUpdate(topic)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	if provider == "" {
		return intake.Decode(payload)
	}
	record, err := resourceRecord(provider, service, resource, payload)
	if err != nil {
		return nil, err
	}
	return intake.Decode(record)
}

// resourceRecord builds an update record for a per-resource topic. An
// object carrying "value" or "metadata" is taken as a record and gets the
// topic's path; anything else is the value itself. Payloads that are not
// JSON are taken as string values.
func resourceRecord(provider, service, resource string, payload []byte) ([]byte, error) {
	payload = bytes.TrimSpace(payload)

	var fields map[string]json.RawMessage
	if len(payload) > 0 && payload[0] == '{' && json.Unmarshal(payload, &fields) == nil {
		_, hasValue := fields["value"]
		_, hasMeta := fields["metadata"]
		if hasValue || hasMeta {
			for k, v := range map[string]string{"provider": provider, "service": service, "resource": resource} {
				raw, _ := json.Marshal(v)
				fields[k] = raw
			}
			return json.Marshal(fields)
		}
	}

	value := json.RawMessage(payload)
	if len(payload) == 0 || !json.Valid(payload) {
		raw, err := json.Marshal(string(payload))
		if err != nil {
			return nil, err
		}
		value = raw
	}
	return json.Marshal(map[string]any{
		"provider": provider,
		"service":  service,
		"resource": resource,
		"value":    value,
	})
}

// GetMetrics returns traffic counters.
func (b *Bridge) GetMetrics() Metrics {
	return Metrics{
		Received: b.received.Load(),
		Applied:  b.applied.Load(),
		Rejected: b.rejected.Load(),
	}
}
