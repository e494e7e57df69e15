package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Supported category filter modes.
const (
	FilterModeNone      = "none"
	FilterModeAllowList = "allow-list"
)

// Alert rule directions.
const (
	DirectionAbove = "above"
	DirectionBelow = "below"
)

// DefaultAllowList is the set of physical measurement labels accepted when
// the allow-list filter is active and no list is configured.
var DefaultAllowList = []string{
	"MaximumWindSpeed(kmh)",
	"WindSpeed(kmh)",
	"Precipitation(mm)",
	"Pressure(hPa)",
	"Temperature(C)",
	"Humidity(%)",
	"Wind Direction",
	"Soil Mosture(%)",
	"State",
}

// Config is the root configuration structure for sensorhub.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	Ingest   IngestConfig   `yaml:"ingest"`
	API      APIConfig      `yaml:"api"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SiteConfig identifies the deployment.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains measurement store settings.
type DatabaseConfig struct {
	// Driver selects the backend: "sqlite" (default) or "postgres".
	Driver string `yaml:"driver"`

	// SQLite settings.
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// PostgreSQL settings. DSN is a pgx connection string or URL.
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// IngestConfig contains ingestion pipeline settings.
type IngestConfig struct {
	BatchSize      int      `yaml:"batch_size"`
	CategoryFilter string   `yaml:"category_filter"`
	AllowList      []string `yaml:"allow_list"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host           string           `yaml:"host"`
	Port           int              `yaml:"port"`
	TLS            TLSConfig        `yaml:"tls"`
	Timeouts       APITimeoutConfig `yaml:"timeouts"`
	CORS           CORSConfig       `yaml:"cors"`
	MaxUploadBytes int64            `yaml:"max_upload_bytes"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
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

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                 `yaml:"enabled"`
	Broker      MQTTBrokerConfig     `yaml:"broker"`
	Auth        MQTTAuthConfig       `yaml:"auth"`
	QoS         int                  `yaml:"qos"`
	Reconnect   MQTTReconnectConfig  `yaml:"reconnect"`
	TopicPrefix string               `yaml:"topic_prefix"`
	Embedded    EmbeddedBrokerConfig `yaml:"embedded"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	// MaxDelay caps paho's doubling backoff between reconnect attempts.
	MaxDelay int `yaml:"max_delay"`
}

// EmbeddedBrokerConfig runs an in-process MQTT broker for single-box deployments.
type EmbeddedBrokerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// AlertsConfig contains threshold alert rules evaluated after each ingest.
type AlertsConfig struct {
	Enabled bool              `yaml:"enabled"`
	Rules   []AlertRuleConfig `yaml:"rules"`
}

// AlertRuleConfig is a single threshold rule.
// An empty Device matches every device.
type AlertRuleConfig struct {
	Device    string  `yaml:"device"`
	Category  string  `yaml:"category"`
	Threshold float64 `yaml:"threshold"`
	Direction string  `yaml:"direction"`
}

// InfluxDBConfig contains InfluxDB connection settings for the measurement mirror.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
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
// Environment variables follow the pattern: SENSORHUB_SECTION_KEY
// For example: SENSORHUB_DATABASE_PATH, SENSORHUB_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
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
		Site: SiteConfig{
			ID:   "sensorhub-001",
			Name: "Sensor Hub",
		},
		Database: DatabaseConfig{
			Driver:       DriverSQLite,
			Path:         "./data/sensorhub.db",
			WALMode:      true,
			BusyTimeout:  5,
			MaxOpenConns: 10,
		},
		Ingest: IngestConfig{
			BatchSize:      5000,
			CategoryFilter: FilterModeNone,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 120,
				Idle:  60,
			},
			MaxUploadBytes: 32 << 20,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "sensorhub-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				MaxDelay: 60,
			},
			TopicPrefix: "sensorhub",
			Embedded: EmbeddedBrokerConfig{
				Address: ":1883",
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     500,
			FlushInterval: 10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SENSORHUB_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("SENSORHUB_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("SENSORHUB_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SENSORHUB_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Ingest
	if v := os.Getenv("SENSORHUB_INGEST_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.BatchSize = n
		}
	}

	// API
	if v := os.Getenv("SENSORHUB_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("SENSORHUB_API_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = n
		}
	}

	// MQTT
	if v := os.Getenv("SENSORHUB_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SENSORHUB_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SENSORHUB_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("SENSORHUB_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for the postgres driver (set SENSORHUB_DATABASE_DSN)")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver must be %q or %q", DriverSQLite, DriverPostgres))
	}

	if c.Ingest.BatchSize < 1 {
		errs = append(errs, "ingest.batch_size must be positive")
	}
	switch c.Ingest.CategoryFilter {
	case FilterModeNone, FilterModeAllowList:
	default:
		errs = append(errs, fmt.Sprintf("ingest.category_filter must be %q or %q", FilterModeNone, FilterModeAllowList))
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.MaxUploadBytes < 1 {
		errs = append(errs, "api.max_upload_bytes must be positive")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Alerts.Enabled && !c.MQTT.Enabled {
		errs = append(errs, "alerts require mqtt.enabled")
	}
	for i, r := range c.Alerts.Rules {
		if strings.TrimSpace(r.Category) == "" {
			errs = append(errs, fmt.Sprintf("alerts.rules[%d].category is required", i))
		}
		if r.Direction != DirectionAbove && r.Direction != DirectionBelow {
			errs = append(errs, fmt.Sprintf("alerts.rules[%d].direction must be %q or %q", i, DirectionAbove, DirectionBelow))
		}
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// AllowList returns the configured allow-list, falling back to DefaultAllowList.
func (c *Config) AllowList() []string {
	if len(c.Ingest.AllowList) > 0 {
		return c.Ingest.AllowList
	}
	return DefaultAllowList
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
