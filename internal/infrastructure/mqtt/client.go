package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-twin/internal/infrastructure/config"
)

// Logger is the logging interface used by Client.
// *logging.Logger satisfies it.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MessageHandler processes one received message. topic is the concrete
// topic, never the subscription pattern. A returned error is logged.
//
// Handlers run on paho's goroutines and may run concurrently.
type MessageHandler func(topic string, payload []byte) error

// Client is the gateway's connection to the MQTT broker.
//
// It announces the gateway on the retained system status topic, keeps the
// set of subscriptions so they survive reconnects, and recovers handler
// panics so a bad message cannot take the process down.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	conn      pahomqtt.Client
	clientID  string
	qos       byte
	connected atomic.Bool
	subs      subscriptionSet

	mu           sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Connect dials the broker described by cfg and waits for the first
// connection to complete.
//
// Parameters:
//   - cfg: MQTT section of the configuration
//
// Returns:
//   - *Client: Connected client; Close releases it
//   - error: ErrConnectionFailed wrapping the cause
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts := clientOptions(cfg)
	c := newClient(cfg, nil)

	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleConnectionLost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.log().Info("reconnecting to MQTT broker", "broker", brokerURL(cfg.Broker))
	})

	c.conn = pahomqtt.NewClient(opts)
	if err := await(c.conn.Connect(), connectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}

	// The connect handler runs asynchronously; mark the client usable now.
	c.connected.Store(true)
	return c, nil
}

// newClient builds a Client around conn without connecting.
func newClient(cfg config.MQTTConfig, conn pahomqtt.Client) *Client {
	return &Client{
		conn:     conn,
		clientID: cfg.Broker.ClientID,
		qos:      byte(cfg.QoS), //nolint:gosec // validated 0-2 by config
		subs:     subscriptionSet{entries: make(map[string]subscription)},
		logger:   noopLogger{},
	}
}

// await waits for tok and wraps a timeout or failure in op.
func await(tok pahomqtt.Token, timeout time.Duration, op error) error {
	if !tok.WaitTimeout(timeout) {
		return fmt.Errorf("%w: %w after %v", op, ErrTimeout, timeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%w: %w", op, err)
	}
	return nil
}

// handleConnect runs on the first connect and on every reconnect.
func (c *Client) handleConnect() {
	c.connected.Store(true)

	for _, s := range c.subs.all() {
		// Failures surface as missing traffic; the next reconnect retries.
		c.conn.Subscribe(s.topic, s.qos, c.dispatch(s.handler))
	}
	c.publishStatus(StateOnline, "")

	c.mu.RLock()
	cb := c.onConnect
	c.mu.RUnlock()
	if cb != nil {
		cb()
	}
}

// handleConnectionLost runs when paho drops the connection.
func (c *Client) handleConnectionLost(err error) {
	c.connected.Store(false)

	c.mu.RLock()
	cb := c.onDisconnect
	c.mu.RUnlock()
	if cb != nil {
		cb(err)
	}
}

// publishStatus publishes the retained presence message without waiting
// for the acknowledgement.
func (c *Client) publishStatus(state, reason string) pahomqtt.Token {
	return c.conn.Publish(Topics{}.SystemStatus(), c.qos, true,
		statusPayload(c.clientID, state, reason, time.Now()))
}

// Close announces a clean shutdown and disconnects.
//
// Returns:
//   - error: Always nil; disconnecting an already dropped client is fine
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	if c.IsConnected() {
		c.publishStatus(StateOffline, "shutdown").WaitTimeout(ackTimeout)
	}
	c.conn.Disconnect(disconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports whether the broker connection is up.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - error: ErrNotConnected or the context error, nil when healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known connection state, confirmed by paho.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.conn.IsConnected()
}

// SetOnConnect sets a callback run after every (re)connection, once
// subscriptions have been restored.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets the logger for handler failures and reconnects. nil
// silences logging.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// dispatch adapts a MessageHandler to paho, logging errors and recovering
// panics.
func (c *Client) dispatch(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		topic := msg.Topic()
		defer func() {
			if r := recover(); r != nil {
				c.log().Error("MQTT handler panic recovered", "topic", topic, "panic", r)
			}
		}()

		if err := handler(topic, msg.Payload()); err != nil {
			c.log().Warn("MQTT handler failed", "topic", topic, "error", err)
		}
	}
}
