// Package mqttbridge connects the twin to an MQTT broker in both directions.
//
// Bridge is southbound: it subscribes to the update topics, decodes each
// message into intake updates and pushes them through the gateway as one
// command per message.
//
//	graytwin/updates                     full JSON record or array of records
//	graytwin/updates/{p}/{s}/{r}         bare JSON value, or a record without a path
//
// Relay is northbound: a notify.Listener that republishes committed events
// under the event prefix as JSON.
//
//	graytwin/events/DATA/{p}/{s}/{r}
//	graytwin/events/LIFECYCLE/{p}
package mqttbridge
