package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the MIRV relay core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Relay     RelayConfig     `yaml:"relay"`
	Auth      AuthConfig      `yaml:"auth"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Audit     AuditConfig     `yaml:"audit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
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

// WebSocketConfig contains device WebSocket transport settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
	SendBufferSize int    `yaml:"send_buffer_size"`
}

// Duplicate-id policies for device admission.
const (
	DuplicatePolicyReject  = "reject"
	DuplicatePolicyReplace = "replace"
)

// RelayConfig contains relay gateway settings.
type RelayConfig struct {
	// CallTimeout is the default device call timeout in seconds.
	CallTimeout int `yaml:"call_timeout"`

	// DuplicatePolicy controls admission when a device id is already
	// registered: "reject" refuses the new session, "replace" evicts the
	// older one.
	DuplicatePolicy string `yaml:"duplicate_policy"`
}

// AuthConfig contains token validation settings.
//
// Operator and device tokens are independent credential spaces signed with
// separate secrets; a token from one space never validates in the other.
type AuthConfig struct {
	OperatorSecret string `yaml:"operator_secret"`
	DeviceSecret   string `yaml:"device_secret"`
	Issuer         string `yaml:"issuer"`
}

// MQTTConfig contains MQTT broker connection settings for state fan-out.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	QoS       int                 `yaml:"qos"`
}

// MQTTReconnectConfig contains reconnection backoff settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
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

// InfluxDBConfig contains InfluxDB connection settings for telemetry history.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// AuditConfig contains connection-event log settings.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
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
//
// Environment variables follow the pattern: MIRV_SECTION_KEY
// For example: MIRV_API_PORT, MIRV_AUTH_DEVICE_SECRET
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  120,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 65536,
			PingInterval:   30,
			PongTimeout:    10,
			SendBufferSize: 64,
		},
		Relay: RelayConfig{
			CallTimeout:     20,
			DuplicatePolicy: DuplicatePolicyReject,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "mirv-relay",
			},
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			QoS: 1,
		},
		Audit: AuditConfig{
			Path: "./data/relay-audit.db",
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
	if v := os.Getenv("MIRV_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("MIRV_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("MIRV_AUTH_OPERATOR_SECRET"); v != "" {
		cfg.Auth.OperatorSecret = v
	}
	if v := os.Getenv("MIRV_AUTH_DEVICE_SECRET"); v != "" {
		cfg.Auth.DeviceSecret = v
	}
	if v := os.Getenv("MIRV_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MIRV_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MIRV_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("MIRV_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("MIRV_AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
	}
}

// minSecretLength is the minimum accepted token secret length.
// Short secrets make HS256 tokens trivially forgeable.
const minSecretLength = 32

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Relay.CallTimeout < 1 {
		errs = append(errs, "relay.call_timeout must be at least 1 second")
	}
	switch c.Relay.DuplicatePolicy {
	case DuplicatePolicyReject, DuplicatePolicyReplace:
	default:
		errs = append(errs, "relay.duplicate_policy must be \"reject\" or \"replace\"")
	}

	if c.Auth.OperatorSecret == "" {
		errs = append(errs, "auth.operator_secret is required (set MIRV_AUTH_OPERATOR_SECRET)")
	} else if len(c.Auth.OperatorSecret) < minSecretLength {
		errs = append(errs, "auth.operator_secret must be at least 32 characters")
	}
	if c.Auth.DeviceSecret == "" {
		errs = append(errs, "auth.device_secret is required (set MIRV_AUTH_DEVICE_SECRET)")
	} else if len(c.Auth.DeviceSecret) < minSecretLength {
		errs = append(errs, "auth.device_secret must be at least 32 characters")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Audit.Enabled && c.Audit.Path == "" {
		errs = append(errs, "audit.path is required when audit is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// CallTimeout returns the relay call timeout as a Duration.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Relay.CallTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
//
// Note: this must exceed relay.call_timeout or relayed calls are cut off by
// the HTTP server before the device can answer.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
