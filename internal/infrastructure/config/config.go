package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the BacPipes worker.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	BACnet    BACnetConfig    `yaml:"bacnet"`
	Polling   PollingConfig   `yaml:"polling"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Sink      SinkConfig      `yaml:"sink"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains PostgreSQL configuration-store settings.
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Name         string `yaml:"name"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for the sink bridge.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// BACnetConfig contains local BACnet/IP endpoint settings.
type BACnetConfig struct {
	// IP is the local interface address the UDP endpoint binds to.
	IP string `yaml:"ip"`

	// Port is the BACnet/IP UDP port (default 47808).
	Port int `yaml:"port"`

	// DeviceID is the local device object instance announced to peers.
	DeviceID uint32 `yaml:"device_id"`

	// DeviceName is the local device object name.
	DeviceName string `yaml:"device_name"`

	// VendorID is the BACnet vendor identifier for the local device.
	VendorID uint16 `yaml:"vendor_id"`

	// SubnetMaskBits configures broadcast address derivation for discovery.
	// Default 24 (a.b.c.255).
	SubnetMaskBits int `yaml:"subnet_mask_bits"`

	// ReadTimeout is the base per-attempt ReadProperty timeout in milliseconds.
	ReadTimeout int `yaml:"read_timeout_ms"`

	// ReadRetries is the number of extra ReadProperty attempts after the first.
	ReadRetries int `yaml:"read_retries"`

	// WriteTimeout is the WriteProperty deadline in seconds. Writes do not retry.
	WriteTimeout int `yaml:"write_timeout"`
}

// PollingConfig contains scheduler/poller settings.
type PollingConfig struct {
	// TickInterval is the scheduler tick period in seconds.
	TickInterval int `yaml:"tick_interval"`

	// DefaultInterval is the poll interval applied to points without one, in seconds.
	DefaultInterval int `yaml:"default_interval"`

	// DeviceFanout bounds concurrent in-flight reads per device.
	DeviceFanout int `yaml:"device_fanout"`
}

// DiscoveryConfig contains discovery worker settings.
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled"`

	// JobPollInterval is how often the job table is polled, in seconds.
	JobPollInterval int `yaml:"job_poll_interval"`
}

// SinkConfig contains time-series sink bridge settings.
type SinkConfig struct {
	Enabled bool `yaml:"enabled"`

	// ClientIDSuffix distinguishes the sink's MQTT session from the worker's.
	ClientIDSuffix string `yaml:"client_id_suffix"`
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
// Environment variables follow the pattern: BACPIPES_SECTION_KEY
// For example: BACPIPES_DATABASE_HOST, BACPIPES_MQTT_BROKER_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv builds a configuration from defaults and environment variables
// only, for deployments that run without a YAML file (the original container
// contract: DB_HOST, MQTT_BROKER, BACNET_IP and friends).
func LoadFromEnv() (*Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "BacPipes",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			Name:    "bacpipes",
			User:    "bacpipes",
			SSLMode: "disable",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "bacpipes_worker",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       true,
			URL:           "http://localhost:8086",
			Org:           "bacpipes",
			Bucket:        "sensor_readings",
			BatchSize:     100,
			FlushInterval: 10,
		},
		BACnet: BACnetConfig{
			IP:             "0.0.0.0",
			Port:           47808,
			DeviceID:       3056496,
			DeviceName:     "BacPipes",
			VendorID:       842,
			SubnetMaskBits: 24,
			ReadTimeout:    6000,
			ReadRetries:    3,
			WriteTimeout:   10,
		},
		Polling: PollingConfig{
			TickInterval:    5,
			DefaultInterval: 60,
			DeviceFanout:    8,
		},
		Discovery: DiscoveryConfig{
			Enabled:         true,
			JobPollInterval: 5,
		},
		Sink: SinkConfig{
			Enabled:        true,
			ClientIDSuffix: "_sink",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
//
// Two naming schemes are honoured for the settings below: the
// BACPIPES_SECTION_KEY scheme, and the short legacy names from the original
// container contract (DB_HOST, MQTT_BROKER, BACNET_IP, ...) which
// deployments already export. Settings not listed have no environment
// override.
// The BACPIPES_ form wins when both are present.
func applyEnvOverrides(cfg *Config) {
	// Database
	setString(&cfg.Database.Host, "DB_HOST", "BACPIPES_DATABASE_HOST")
	setInt(&cfg.Database.Port, "DB_PORT", "BACPIPES_DATABASE_PORT")
	setString(&cfg.Database.Name, "DB_NAME", "BACPIPES_DATABASE_NAME")
	setString(&cfg.Database.User, "DB_USER", "BACPIPES_DATABASE_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD", "BACPIPES_DATABASE_PASSWORD")
	setString(&cfg.Database.SSLMode, "", "BACPIPES_DATABASE_SSLMODE")

	// MQTT
	setString(&cfg.MQTT.Broker.Host, "MQTT_BROKER", "BACPIPES_MQTT_BROKER_HOST")
	setInt(&cfg.MQTT.Broker.Port, "MQTT_PORT", "BACPIPES_MQTT_BROKER_PORT")
	setString(&cfg.MQTT.Broker.ClientID, "MQTT_CLIENT_ID", "BACPIPES_MQTT_CLIENT_ID")
	setString(&cfg.MQTT.Auth.Username, "", "BACPIPES_MQTT_USERNAME")
	setString(&cfg.MQTT.Auth.Password, "", "BACPIPES_MQTT_PASSWORD")

	// BACnet
	setString(&cfg.BACnet.IP, "BACNET_IP", "BACPIPES_BACNET_IP")
	setInt(&cfg.BACnet.Port, "BACNET_PORT", "BACPIPES_BACNET_PORT")
	setUint32(&cfg.BACnet.DeviceID, "BACNET_DEVICE_ID", "BACPIPES_BACNET_DEVICE_ID")

	// Polling
	setInt(&cfg.Polling.DefaultInterval, "POLL_INTERVAL", "BACPIPES_POLLING_DEFAULT_INTERVAL")

	// InfluxDB
	setString(&cfg.InfluxDB.URL, "INFLUXDB_URL", "BACPIPES_INFLUXDB_URL")
	setString(&cfg.InfluxDB.Token, "INFLUXDB_TOKEN", "BACPIPES_INFLUXDB_TOKEN")
	setString(&cfg.InfluxDB.Org, "INFLUXDB_ORG", "BACPIPES_INFLUXDB_ORG")
	setString(&cfg.InfluxDB.Bucket, "INFLUXDB_BUCKET", "BACPIPES_INFLUXDB_BUCKET")

	// Site
	setString(&cfg.Site.Timezone, "TZ", "BACPIPES_SITE_TIMEZONE")

	// Logging
	setString(&cfg.Logging.Level, "", "BACPIPES_LOGGING_LEVEL")
	setString(&cfg.Logging.Format, "", "BACPIPES_LOGGING_FORMAT")
}

// setString applies environment values to dst.
// The canonical BACPIPES_ name is checked last so it takes precedence.
func setString(dst *string, legacy, canonical string) {
	if legacy != "" {
		if v := os.Getenv(legacy); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv(canonical); v != "" {
		*dst = v
	}
}

// setInt applies parseable integer environment values to dst.
func setInt(dst *int, legacy, canonical string) {
	apply := func(name string) {
		if name == "" {
			return
		}
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	apply(legacy)
	apply(canonical)
}

// setUint32 applies parseable unsigned environment values to dst.
func setUint32(dst *uint32, legacy, canonical string) {
	apply := func(name string) {
		if name == "" {
			return
		}
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.ParseUint(v, 10, 32); err == nil {
				*dst = uint32(n)
			}
		}
	}
	apply(legacy)
	apply(canonical)
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Site.Timezone != "" {
		if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("site.timezone %q is not a valid IANA name", c.Site.Timezone))
		}
	}

	// Database validation
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		errs = append(errs, "database.port must be between 1 and 65535")
	}
	if c.Database.Name == "" {
		errs = append(errs, "database.name is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}

	// BACnet validation
	if c.BACnet.Port < 1 || c.BACnet.Port > 65535 {
		errs = append(errs, "bacnet.port must be between 1 and 65535")
	}
	if c.BACnet.SubnetMaskBits < 8 || c.BACnet.SubnetMaskBits > 30 {
		errs = append(errs, "bacnet.subnet_mask_bits must be between 8 and 30")
	}
	if c.BACnet.ReadTimeout <= 0 {
		errs = append(errs, "bacnet.read_timeout_ms must be positive")
	}
	if c.BACnet.ReadRetries < 0 {
		errs = append(errs, "bacnet.read_retries must not be negative")
	}

	// Polling validation
	if c.Polling.TickInterval <= 0 {
		errs = append(errs, "polling.tick_interval must be positive")
	}
	if c.Polling.DeviceFanout <= 0 {
		errs = append(errs, "polling.device_fanout must be positive")
	}

	// InfluxDB validation (only when the sink is enabled)
	if c.Sink.Enabled && c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when the sink is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Location resolves the configured IANA timezone.
// Falls back to UTC when unset; Validate has already rejected invalid names.
func (c *Config) Location() *time.Location {
	if c.Site.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetTickInterval returns the scheduler tick period as a Duration.
func (c *Config) GetTickInterval() time.Duration {
	return time.Duration(c.Polling.TickInterval) * time.Second
}

// GetReadTimeout returns the base ReadProperty timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.BACnet.ReadTimeout) * time.Millisecond
}

// GetWriteTimeout returns the WriteProperty deadline as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.BACnet.WriteTimeout) * time.Second
}

// GetJobPollInterval returns the discovery job poll period as a Duration.
func (c *Config) GetJobPollInterval() time.Duration {
	return time.Duration(c.Discovery.JobPollInterval) * time.Second
}
