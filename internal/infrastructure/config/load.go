package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "GRAYTWIN_"

// Load builds the configuration from defaults, the YAML file at path and
// GRAYTWIN_* environment variables, in that order, and validates it.
//
// Unknown keys in the file are rejected so typos do not silently fall back
// to defaults. An empty file yields the defaults.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Validated configuration
//   - error: Read, parse, override or validation failure
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{ID: "graytwin-001", Name: "Gray Twin"},
		Twin: TwinConfig{
			QueueSize:     4096,
			PullTimeoutMs: 5000,
			StopTimeout:   10,
		},
		Database: DatabaseConfig{
			Path:        "./data/graytwin.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		History: HistoryConfig{Enabled: true, RetentionDays: 30},
		MQTT: MQTTConfig{
			Broker:     MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "graytwin"},
			QoS:        1,
			Reconnect:  MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60},
			Southbound: MQTTSouthboundConfig{Enabled: true, Prefix: "graytwin/updates"},
			Relay: MQTTRelayConfig{
				Prefix:   "graytwin/events",
				Patterns: []string{"DATA/#", "LIFECYCLE/#"},
			},
		},
		API: APIConfig{
			Host:     "0.0.0.0",
			Port:     8080,
			Timeouts: APITimeoutConfig{Read: 30, Write: 30, Idle: 60},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{BatchSize: 100, FlushInterval: 10},
		Logging:  LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Metrics:  MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// envOverride binds one variable, named without EnvPrefix, to a field.
type envOverride struct {
	name  string
	apply func(c *Config, v string) error
}

func setString(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func setInt(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("not an integer: %q", v)
		}
		*field(c) = n
		return nil
	}
}

func setBool(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("not a boolean: %q", v)
		}
		*field(c) = b
		return nil
	}
}

var envOverrides = []envOverride{
	{"GATEWAY_ID", setString(func(c *Config) *string { return &c.Gateway.ID })},
	{"TWIN_QUEUE_SIZE", setInt(func(c *Config) *int { return &c.Twin.QueueSize })},
	{"TWIN_CACHE_THRESHOLD_MS", setInt(func(c *Config) *int { return &c.Twin.CacheThresholdMs })},
	{"TWIN_PULL_TIMEOUT_MS", setInt(func(c *Config) *int { return &c.Twin.PullTimeoutMs })},
	{"DATABASE_PATH", setString(func(c *Config) *string { return &c.Database.Path })},
	{"HISTORY_ENABLED", setBool(func(c *Config) *bool { return &c.History.Enabled })},
	{"MQTT_ENABLED", setBool(func(c *Config) *bool { return &c.MQTT.Enabled })},
	{"MQTT_HOST", setString(func(c *Config) *string { return &c.MQTT.Broker.Host })},
	{"MQTT_PORT", setInt(func(c *Config) *int { return &c.MQTT.Broker.Port })},
	{"MQTT_USERNAME", setString(func(c *Config) *string { return &c.MQTT.Auth.Username })},
	{"MQTT_PASSWORD", setString(func(c *Config) *string { return &c.MQTT.Auth.Password })},
	{"API_HOST", setString(func(c *Config) *string { return &c.API.Host })},
	{"API_PORT", setInt(func(c *Config) *int { return &c.API.Port })},
	{"INFLUXDB_ENABLED", setBool(func(c *Config) *bool { return &c.InfluxDB.Enabled })},
	{"INFLUXDB_URL", setString(func(c *Config) *string { return &c.InfluxDB.URL })},
	{"INFLUXDB_TOKEN", setString(func(c *Config) *string { return &c.InfluxDB.Token })},
	{"LOG_LEVEL", setString(func(c *Config) *string { return &c.Logging.Level })},
}

// applyEnv applies every override lookup finds. Empty values are ignored;
// malformed numbers and booleans are errors.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	for _, o := range envOverrides {
		v, ok := lookup(EnvPrefix + o.name)
		if !ok || v == "" {
			continue
		}
		if err := o.apply(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, o.name, err))
		}
	}
	return errors.Join(errs...)
}

// Validate reports every problem found, not just the first.
func (c *Config) Validate() error {
	var problems []string
	check := func(bad bool, format string, args ...any) {
		if bad {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Gateway.ID == "", "gateway.id is required")

	check(c.Twin.QueueSize < 1, "twin.queue_size must be positive")
	check(c.Twin.CacheThresholdMs < 0, "twin.cache_threshold_ms must not be negative")
	check(c.Twin.PullTimeoutMs < 1, "twin.pull_timeout_ms must be positive")
	check(c.Twin.StopTimeout < 0, "twin.stop_timeout must not be negative")

	check(c.Database.Path == "", "database.path is required")
	check(c.History.RetentionDays < 0, "history.retention_days must not be negative")

	check(c.MQTT.QoS < 0 || c.MQTT.QoS > 2, "mqtt.qos must be 0, 1, or 2")
	check(c.MQTT.Enabled && c.MQTT.Broker.Host == "", "mqtt.broker.host is required when mqtt is enabled")

	check(c.API.Port < 1 || c.API.Port > 65535, "api.port must be between 1 and 65535")
	check(c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == ""),
		"api.tls.cert_file and api.tls.key_file are required when tls is enabled")

	check(c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == ""),
		"influxdb.url and influxdb.bucket are required when influxdb is enabled")

	for i, r := range c.Pull.Resources {
		check(r.Provider == "" || r.Service == "" || r.Resource == "",
			"pull.resources[%d]: provider, service and resource are required", i)
		check(r.URL == "", "pull.resources[%d]: url is required", i)
		check(r.CacheThresholdMs < 0, "pull.resources[%d]: cache_threshold_ms must not be negative", i)
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
