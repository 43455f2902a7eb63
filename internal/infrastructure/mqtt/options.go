package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-twin/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	ackTimeout     = 5 * time.Second
	keepAlive      = 60 * time.Second

	// disconnectQuiesce is in milliseconds, as paho expects.
	disconnectQuiesce = 500

	maxQoS = 2

	// maxPayloadSize bounds outgoing messages (1MB).
	maxPayloadSize = 1 << 20
)

// Presence states carried by Status.
const (
	StateOnline  = "online"
	StateOffline = "offline"
)

// Status is the retained presence message of the gateway on the system
// status topic. The broker publishes the offline form as the client's will
// if the connection drops without a clean Close.
type Status struct {
	State     string    `json:"state"`
	ClientID  string    `json:"client_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// statusPayload encodes a Status stamped with now.
func statusPayload(clientID, state, reason string, now time.Time) []byte {
	b, _ := json.Marshal(Status{ //nolint:errchkjson // strings and a time only
		State:     state,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: now.UTC().Truncate(time.Second),
	})
	return b
}

// brokerURL returns tcp:// or ssl:// URL of the configured broker.
func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// clientOptions translates the MQTT section of the config into paho options.
//
// The session is clean: subscriptions are tracked by Client and restored on
// every connect rather than kept by the broker. Reconnection backoff follows
// cfg.Reconnect. The will marks the gateway offline on unexpected loss.
func clientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive).
		// Handlers run on their own goroutines; the bridge serialises
		// through the gateway anyway.
		SetOrderMatters(false)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	will := statusPayload(cfg.Broker.ClientID, StateOffline, "connection_lost", time.Now())
	opts.SetBinaryWill(Topics{}.SystemStatus(), will, 1, true)

	return opts
}
