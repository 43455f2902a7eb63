package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-twin/internal/bridges/mqttbridge"
	"github.com/nerrad567/gray-twin/internal/infrastructure/config"
	"github.com/nerrad567/gray-twin/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-twin/internal/infrastructure/logging"
	"github.com/nerrad567/gray-twin/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-twin/internal/intake"
	"github.com/nerrad567/gray-twin/internal/notify"
)

// connectInflux connects to InfluxDB when enabled.
//
// Returns:
//   - *influxdb.Client: Connected client, or nil when disabled
//   - error: If the connection fails
func connectInflux(cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(cfg.InfluxDB)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil //nolint:nilnil // disabled is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}

	client.SetOnError(func(writeErr error) {
		log.Error("InfluxDB write error", "error", writeErr)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// mqttParts holds the MQTT components started by startMQTT. Every field
// is nil when the matching feature is disabled.
type mqttParts struct {
	client   *mqtt.Client
	relaySub *notify.Subscription
	bridge   *mqttbridge.Bridge
}

// startMQTT connects to the broker and starts the event relay and the
// southbound update bridge as configured.
//
// Parameters:
//   - ctx: Lifetime of the bridge's message processing
//   - cfg: Application configuration
//   - router: Notification router the relay subscribes to
//   - pusher: Target of southbound updates
//   - log: Logger instance
//
// Returns:
//   - *mqttParts: Started components; close releases them
//   - error: If connecting or starting a component fails
func startMQTT(ctx context.Context, cfg *config.Config, router *notify.Router, pusher *intake.Pusher, log *logging.Logger) (*mqttParts, error) {
	parts := &mqttParts{}
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled")
		return parts, nil
	}

	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	parts.client = client
	client.SetLogger(log.Component("mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(disconnectErr error) {
		log.Warn("MQTT connection lost", "error", disconnectErr)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	qos := byte(cfg.MQTT.QoS) //nolint:gosec // validated 0-2 by config

	if cfg.MQTT.Relay.Enabled {
		relay, relayErr := mqttbridge.NewRelay(mqttbridge.RelayOptions{
			Client:   client,
			Topics:   mqtt.Topics{EventPrefix: cfg.MQTT.Relay.Prefix},
			QoS:      qos,
			Retain:   cfg.MQTT.Relay.Retain,
			Patterns: cfg.MQTT.Relay.Patterns,
		})
		if relayErr != nil {
			parts.close(log)
			return nil, fmt.Errorf("creating MQTT relay: %w", relayErr)
		}
		sub, subErr := router.Subscribe(relay.Patterns(), relay)
		if subErr != nil {
			parts.close(log)
			return nil, fmt.Errorf("subscribing MQTT relay: %w", subErr)
		}
		parts.relaySub = sub
		log.Info("MQTT event relay started", "patterns", relay.Patterns())
	}

	if cfg.MQTT.Southbound.Enabled {
		bridge, bridgeErr := mqttbridge.NewBridge(mqttbridge.Options{
			Client: client,
			Pusher: mqttbridge.FromIntake(pusher),
			Topics: mqtt.Topics{UpdatePrefix: cfg.MQTT.Southbound.Prefix},
			QoS:    qos,
		})
		if bridgeErr != nil {
			parts.close(log)
			return nil, fmt.Errorf("creating MQTT bridge: %w", bridgeErr)
		}
		bridge.SetLogger(log.Component("mqttbridge"))
		if startErr := bridge.Start(ctx); startErr != nil {
			parts.close(log)
			return nil, fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
		parts.bridge = bridge
		log.Info("MQTT southbound bridge started")
	}

	return parts, nil
}

// close stops the bridge, detaches the relay, and disconnects the client.
func (p *mqttParts) close(log *logging.Logger) {
	if p.bridge != nil {
		if err := p.bridge.Stop(); err != nil {
			log.Error("error stopping MQTT bridge", "error", err)
		}
	}
	if p.relaySub != nil {
		p.relaySub.Close()
	}
	if p.client != nil {
		log.Info("disconnecting from MQTT")
		if err := p.client.Close(); err != nil {
			log.Error("error closing MQTT", "error", err)
		}
	}
}
