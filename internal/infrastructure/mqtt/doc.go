// Package mqtt connects Gray Twin to an MQTT broker.
//
// MQTT carries twin traffic in both directions:
//
//	devices ── graytwin/updates/... ──▶ gateway ── graytwin/events/... ──▶ consumers
//
// Southbound adapters publish value updates under the update prefix and the
// mqttbridge package feeds them into the twin. Committed notifications are
// relayed under the event prefix. Both prefixes are configurable; Topics
// builds and parses the topic names.
//
// The client publishes a retained Status message on graytwin/system/status:
// online after every connect, offline on Close, and offline with reason
// connection_lost as the broker-side will. Subscriptions are remembered and
// re-issued on reconnect because the session is clean.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllUpdates(), 1,
//	    func(topic string, payload []byte) error {
//	        return bridge.HandleMessage(topic, payload)
//	    })
package mqtt
