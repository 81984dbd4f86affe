package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Default broker settings, matching the hosted Emitter service.
const (
	DefaultHost       = "api.emitter.io"
	DefaultSecurePort = 443
	DefaultPlainPort  = 8080
	DefaultKeepAlive  = 30

	// clientIDPrefix is prepended to generated client identifiers.
	clientIDPrefix = "emitter-go-"
)

// Config is the root configuration structure for the Emitter client.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Emitter   EmitterConfig   `yaml:"emitter"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// EmitterConfig contains the broker connection and subscription settings.
type EmitterConfig struct {
	Broker        BrokerConfig         `yaml:"broker"`
	Auth          AuthConfig           `yaml:"auth"`
	QoS           int                  `yaml:"qos"`
	KeepAlive     int                  `yaml:"keepalive"`
	Reconnect     ReconnectConfig      `yaml:"reconnect"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
}

// BrokerConfig contains the Emitter broker address.
type BrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Secure selects TLS (ssl:// or wss://). A nil value means true.
	Secure *bool `yaml:"secure"`

	// Transport is "tcp" (default) or "ws" for MQTT over WebSocket.
	Transport string `yaml:"transport"`

	// ClientID identifies the connection. Generated when empty.
	ClientID string `yaml:"client_id"`
}

// AuthConfig contains MQTT credentials. Emitter uses channel keys for
// authorisation, so these are usually empty.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ReconnectConfig contains reconnection settings (seconds).
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// SubscriptionConfig describes one channel subscribed by the listen command.
type SubscriptionConfig struct {
	Key     string `yaml:"key"`
	Channel string `yaml:"channel"`
	Group   string `yaml:"group"`
	Last    int    `yaml:"last"`
}

// DatabaseConfig contains SQLite settings for the channel key store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for message metrics.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains the local status API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains settings for the live message stream.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//  4. Derived values (port from secure flag, generated client ID)
//
// Environment variables follow the pattern: EMITTER_KEY
// For example: EMITTER_HOST, EMITTER_DATABASE_PATH
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.normalise()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults and derived values
// applied. It is valid as-is and used when no config file exists.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	cfg.normalise()
	return cfg
}

// defaultConfig returns the hardcoded defaults before derived values are
// filled in, so that file values such as broker.secure still pick the port.
func defaultConfig() *Config {
	return &Config{
		Emitter: EmitterConfig{
			Broker: BrokerConfig{
				Host:      DefaultHost,
				Transport: "tcp",
			},
			QoS:       0,
			KeepAlive: DefaultKeepAlive,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/emitter.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EMITTER_HOST"); v != "" {
		cfg.Emitter.Broker.Host = v
	}
	if v := os.Getenv("EMITTER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Emitter.Broker.Port = port
		}
	}
	if v := os.Getenv("EMITTER_CLIENT_ID"); v != "" {
		cfg.Emitter.Broker.ClientID = v
	}
	if v := os.Getenv("EMITTER_USERNAME"); v != "" {
		cfg.Emitter.Auth.Username = v
	}
	if v := os.Getenv("EMITTER_PASSWORD"); v != "" {
		cfg.Emitter.Auth.Password = v
	}
	if v := os.Getenv("EMITTER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("EMITTER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// normalise fills derived values that depend on other settings.
func (c *Config) normalise() {
	b := &c.Emitter.Broker

	b.Host = stripScheme(b.Host)
	b.Transport = strings.ToLower(b.Transport)
	if b.Transport == "" {
		b.Transport = "tcp"
	}
	if b.Secure == nil {
		secure := true
		b.Secure = &secure
	}
	if b.Port == 0 {
		if *b.Secure {
			b.Port = DefaultSecurePort
		} else {
			b.Port = DefaultPlainPort
		}
	}
	if b.ClientID == "" {
		b.ClientID = clientIDPrefix + uuid.NewString()[:8]
	}
	if c.Emitter.KeepAlive <= 0 {
		c.Emitter.KeepAlive = DefaultKeepAlive
	}
}

// stripScheme removes a "scheme://" prefix and any path from a host.
func stripScheme(host string) string {
	if _, rest, ok := strings.Cut(host, "://"); ok {
		host = rest
	}
	host, _, _ = strings.Cut(host, "/")
	return host
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Emitter.Broker.Host == "" {
		errs = append(errs, "emitter.broker.host is required")
	}
	if c.Emitter.Broker.Port < 1 || c.Emitter.Broker.Port > 65535 {
		errs = append(errs, "emitter.broker.port must be between 1 and 65535")
	}
	switch c.Emitter.Broker.Transport {
	case "tcp", "ws":
	default:
		errs = append(errs, "emitter.broker.transport must be tcp or ws")
	}
	if c.Emitter.QoS < 0 || c.Emitter.QoS > 2 {
		errs = append(errs, "emitter.qos must be 0, 1, or 2")
	}
	for i, sub := range c.Emitter.Subscriptions {
		if sub.Channel == "" {
			errs = append(errs, fmt.Sprintf("emitter.subscriptions[%d].channel is required", i))
		}
		if sub.Last < 0 {
			errs = append(errs, fmt.Sprintf("emitter.subscriptions[%d].last must not be negative", i))
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsSecure reports whether the broker connection uses TLS.
func (b BrokerConfig) IsSecure() bool {
	return b.Secure == nil || *b.Secure
}

// URL returns the broker URL in the form paho expects.
//
// Example: ssl://api.emitter.io:443, ws://localhost:8080
func (b BrokerConfig) URL() string {
	scheme := "tcp"
	switch {
	case b.Transport == "ws" && b.IsSecure():
		scheme = "wss"
	case b.Transport == "ws":
		scheme = "ws"
	case b.IsSecure():
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// GetKeepAlive returns the MQTT keepalive as a Duration.
func (c EmitterConfig) GetKeepAlive() time.Duration {
	return time.Duration(c.KeepAlive) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
