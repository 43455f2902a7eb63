package config

import "time"

// Config is the gateway configuration as read from config.yaml. Load fills
// it from defaults, the file, and then GRAYTWIN_* environment variables.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Twin      TwinConfig      `yaml:"twin"`
	Database  DatabaseConfig  `yaml:"database"`
	History   HistoryConfig   `yaml:"history"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Pull      PullConfig      `yaml:"pull"`
}

// GatewayConfig identifies this gateway instance.
type GatewayConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// TwinConfig holds the model registry and command gateway settings.
type TwinConfig struct {
	// QueueSize bounds the command queue. Submitters block while it is full.
	QueueSize int `yaml:"queue_size"`

	// CacheThresholdMs is the default freshness window for cached reads of
	// pulled resources, in milliseconds. 0 means always pull.
	CacheThresholdMs int `yaml:"cache_threshold_ms"`

	// PullTimeoutMs bounds each pull callback, in milliseconds.
	PullTimeoutMs int `yaml:"pull_timeout_ms"`

	// AutoDelete is given to implicitly created providers.
	AutoDelete bool `yaml:"auto_delete"`

	// StopTimeout is how long shutdown waits for the running command, in seconds.
	StopTimeout int `yaml:"stop_timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// HistoryConfig contains settings for the SQLite value history.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
	// RetentionDays prunes older rows. 0 keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled    bool                 `yaml:"enabled"`
	Broker     MQTTBrokerConfig     `yaml:"broker"`
	Auth       MQTTAuthConfig       `yaml:"auth"`
	QoS        int                  `yaml:"qos"`
	Reconnect  MQTTReconnectConfig  `yaml:"reconnect"`
	Southbound MQTTSouthboundConfig `yaml:"southbound"`
	Relay      MQTTRelayConfig      `yaml:"relay"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig bounds paho's reconnect backoff, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// MQTTSouthboundConfig controls the bridge that turns MQTT messages into
// twin updates.
type MQTTSouthboundConfig struct {
	Enabled bool `yaml:"enabled"`
	// Prefix of update topics; the bridge subscribes to Prefix/#.
	Prefix string `yaml:"prefix"`
}

// MQTTRelayConfig controls republishing of notification events to MQTT.
type MQTTRelayConfig struct {
	Enabled bool `yaml:"enabled"`
	// Prefix is prepended to event topics.
	Prefix string `yaml:"prefix"`
	// Patterns selects which events are relayed.
	Patterns []string `yaml:"patterns"`
	// Retain marks DATA messages as retained.
	Retain bool `yaml:"retain"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig holds HTTP server timeouts, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// PullConfig declares resources whose values are fetched over HTTP on read.
type PullConfig struct {
	Resources []PullResourceConfig `yaml:"resources"`
}

// PullResourceConfig declares one HTTP-pulled resource.
type PullResourceConfig struct {
	Provider string `yaml:"provider"`
	Service  string `yaml:"service"`
	Resource string `yaml:"resource"`
	// Kind is the declared value type ("float", "int", ...).
	Kind string `yaml:"kind"`
	URL  string `yaml:"url"`
	// Field is a dot-separated path into a JSON response. Empty means the
	// whole body is the value.
	Field            string            `yaml:"field"`
	Headers          map[string]string `yaml:"headers"`
	CacheThresholdMs int               `yaml:"cache_threshold_ms"`
}

// CacheThreshold is the default freshness window of pulled resources.
func (t TwinConfig) CacheThreshold() time.Duration {
	return time.Duration(t.CacheThresholdMs) * time.Millisecond
}

// PullTimeout bounds one pull callback.
func (t TwinConfig) PullTimeout() time.Duration {
	return time.Duration(t.PullTimeoutMs) * time.Millisecond
}

// ShutdownTimeout is how long shutdown waits for the running command.
func (t TwinConfig) ShutdownTimeout() time.Duration {
	return time.Duration(t.StopTimeout) * time.Second
}

// Retention is how long history rows are kept; 0 keeps them forever.
func (h HistoryConfig) Retention() time.Duration {
	return time.Duration(h.RetentionDays) * 24 * time.Hour
}

// ReadTimeout also bounds reading request headers.
func (t APITimeoutConfig) ReadTimeout() time.Duration { return seconds(t.Read) }

// WriteTimeout bounds writing a response.
func (t APITimeoutConfig) WriteTimeout() time.Duration { return seconds(t.Write) }

// IdleTimeout bounds keep-alive connections between requests.
func (t APITimeoutConfig) IdleTimeout() time.Duration { return seconds(t.Idle) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
