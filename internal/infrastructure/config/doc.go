// Package config loads the gateway configuration.
//
// Values come from built-in defaults, then configs/config.yaml (or the
// file named by GRAYTWIN_CONFIG), then selected GRAYTWIN_* environment
// variables such as GRAYTWIN_MQTT_PASSWORD and GRAYTWIN_INFLUXDB_TOKEN.
// Secrets belong in the environment rather than the file.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	gw := gateway.New(registry, router, gateway.Options{QueueSize: cfg.Twin.QueueSize})
package config
