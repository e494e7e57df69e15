package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
database:
  driver: "sqlite"
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
ingest:
  batch_size: 250
  category_filter: "allow-list"
  allow_list: ["Temperature(C)", "Humidity(%)"]
api:
  host: "0.0.0.0"
  port: 8080
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
alerts:
  enabled: true
  rules:
    - category: "Temperature(C)"
      threshold: 30
      direction: "above"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Ingest.BatchSize != 250 {
		t.Errorf("Ingest.BatchSize = %d, want 250", cfg.Ingest.BatchSize)
	}
	if cfg.Ingest.CategoryFilter != FilterModeAllowList {
		t.Errorf("Ingest.CategoryFilter = %q, want %q", cfg.Ingest.CategoryFilter, FilterModeAllowList)
	}
	if got := cfg.AllowList(); len(got) != 2 {
		t.Errorf("AllowList() = %v, want 2 entries", got)
	}
	if len(cfg.Alerts.Rules) != 1 || cfg.Alerts.Rules[0].Threshold != 30 {
		t.Errorf("Alerts.Rules = %+v, want one rule with threshold 30", cfg.Alerts.Rules)
	}
	// Untouched sections keep their defaults.
	if cfg.API.MaxUploadBytes != 32<<20 {
		t.Errorf("API.MaxUploadBytes = %d, want %d", cfg.API.MaxUploadBytes, 32<<20)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
database:
  path: "/tmp/test.db"
api:
  port: 8080
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(_ *Config) {},
		},
		{
			name:    "missing site ID",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: "site.id",
		},
		{
			name:    "missing sqlite path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Database.Driver = DriverPostgres },
			wantErr: "database.dsn",
		},
		{
			name: "postgres with dsn",
			mutate: func(c *Config) {
				c.Database.Driver = DriverPostgres
				c.Database.DSN = "postgres://sensorhub@localhost/sensorhub"
			},
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "mysql" },
			wantErr: "database.driver",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Ingest.BatchSize = 0 },
			wantErr: "ingest.batch_size",
		},
		{
			name:    "unknown filter mode",
			mutate:  func(c *Config) { c.Ingest.CategoryFilter = "strict" },
			wantErr: "ingest.category_filter",
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api.port",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "alerts without mqtt",
			mutate:  func(c *Config) { c.Alerts.Enabled = true },
			wantErr: "alerts require mqtt.enabled",
		},
		{
			name: "alert rule with bad direction",
			mutate: func(c *Config) {
				c.Alerts.Rules = []AlertRuleConfig{{Category: "Temperature(C)", Direction: "sideways"}}
			},
			wantErr: "alerts.rules[0].direction",
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Site.ID = ""
	cfg.API.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "site.id") || !strings.Contains(err.Error(), "api.port") {
		t.Errorf("Validate() error = %v, want both site.id and api.port reported", err)
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("SENSORHUB_DATABASE_DRIVER", "postgres")
	t.Setenv("SENSORHUB_DATABASE_PATH", "/custom/path.db")
	t.Setenv("SENSORHUB_DATABASE_DSN", "postgres://u:p@db/sensorhub")
	t.Setenv("SENSORHUB_INGEST_BATCH_SIZE", "1000")
	t.Setenv("SENSORHUB_API_HOST", "192.168.1.1")
	t.Setenv("SENSORHUB_API_PORT", "9090")
	t.Setenv("SENSORHUB_MQTT_HOST", "mqtt.example.com")
	t.Setenv("SENSORHUB_MQTT_USERNAME", "testuser")
	t.Setenv("SENSORHUB_MQTT_PASSWORD", "testpass")
	t.Setenv("SENSORHUB_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Database.Driver != "postgres" {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, "postgres")
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.Database.DSN != "postgres://u:p@db/sensorhub" {
		t.Errorf("Database.DSN = %q", cfg.Database.DSN)
	}
	if cfg.Ingest.BatchSize != 1000 {
		t.Errorf("Ingest.BatchSize = %d, want 1000", cfg.Ingest.BatchSize)
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestApplyEnvOverrides_IgnoresNonNumeric(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("SENSORHUB_INGEST_BATCH_SIZE", "lots")

	applyEnvOverrides(cfg)

	if cfg.Ingest.BatchSize != 5000 {
		t.Errorf("Ingest.BatchSize = %d, want default 5000", cfg.Ingest.BatchSize)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("defaultConfig Database.Driver = %q, want %q", cfg.Database.Driver, DriverSQLite)
	}
	if cfg.Ingest.BatchSize != 5000 {
		t.Errorf("defaultConfig Ingest.BatchSize = %d, want 5000", cfg.Ingest.BatchSize)
	}
	if cfg.Ingest.CategoryFilter != FilterModeNone {
		t.Errorf("defaultConfig Ingest.CategoryFilter = %q, want %q", cfg.Ingest.CategoryFilter, FilterModeNone)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
	if got := cfg.AllowList(); len(got) != len(DefaultAllowList) {
		t.Errorf("AllowList() len = %d, want %d", len(got), len(DefaultAllowList))
	}
}
