// Sensorhub Core - sensor reading ingestion and time-series service
//
// This is the main entry point for the sensorhub service. It accepts CSV and
// JSON exports from field stations, stores each reading once per
// (timestamp, device, category), and serves devices, categories and series
// back to dashboards.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/sensorhub-core/migrations"

	"github.com/nerrad567/sensorhub-core/internal/alert"
	"github.com/nerrad567/sensorhub-core/internal/api"
	"github.com/nerrad567/sensorhub-core/internal/audit"
	"github.com/nerrad567/sensorhub-core/internal/infrastructure/config"
	"github.com/nerrad567/sensorhub-core/internal/infrastructure/database"
	"github.com/nerrad567/sensorhub-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/sensorhub-core/internal/infrastructure/logging"
	"github.com/nerrad567/sensorhub-core/internal/infrastructure/metrics"
	"github.com/nerrad567/sensorhub-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/sensorhub-core/internal/ingest"
	"github.com/nerrad567/sensorhub-core/internal/measurement"
	"github.com/nerrad567/sensorhub-core/internal/query"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting sensorhub",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, database.Config{
		Driver:       cfg.Database.Driver,
		Path:         cfg.Database.Path,
		WALMode:      cfg.Database.WALMode,
		BusyTimeout:  cfg.Database.BusyTimeout,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "driver", db.Dialect())

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics()
	}

	health := map[string]api.HealthChecker{"database": db}

	// Embedded broker (optional) must be up before the client connects.
	if cfg.MQTT.Embedded.Enabled {
		broker, brokerErr := mqtt.NewBroker(cfg.MQTT.Embedded, log.Logger)
		if brokerErr != nil {
			return brokerErr
		}
		if startErr := broker.Start(); startErr != nil {
			return startErr
		}
		defer func() {
			log.Info("stopping embedded MQTT broker")
			if closeErr := broker.Close(); closeErr != nil {
				log.Error("error stopping MQTT broker", "error", closeErr)
			}
		}()
		log.Info("embedded MQTT broker started", "address", broker.Address())
	}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = connectMQTT(cfg.MQTT, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		health["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	var hook ingest.Hook
	if cfg.Alerts.Enabled {
		if mqttClient == nil {
			return errors.New("alerts require mqtt.enabled")
		}
		notifier, notifierErr := alert.NewNotifier(cfg.Alerts.Rules, mqttClient, alert.Options{
			Topics:  mqttClient.Topics(),
			QoS:     byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0..2
			Logger:  log.Component("alert"),
			Metrics: m,
		})
		if notifierErr != nil {
			return fmt.Errorf("creating alert notifier: %w", notifierErr)
		}
		hook = notifier.Check
		log.Info("alert rules loaded", "rules", len(notifier.Rules()))
	}

	var mirror ingest.Mirror
	influxClient, err := influxdb.Connect(cfg.InfluxDB, func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB mirror disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		mirror = influxClient
		health["influxdb"] = influxClient
		log.Info("InfluxDB mirror connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	store := measurement.NewSQLStore(db)
	parser := ingest.NewParser(ingest.ParserOptions{
		Filter:  categoryFilter(cfg),
		Logger:  log.Component("parser"),
		Metrics: m,
	})
	writer := ingest.NewWriter(store, ingest.WriterOptions{
		BatchSize: cfg.Ingest.BatchSize,
		Hook:      hook,
		Mirror:    mirror,
		Metrics:   m,
		Logger:    log.Component("ingest"),
	})

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Metrics:  cfg.Metrics,
		Logger:   log,
		Parser:   parser,
		Writer:   writer,
		Query:    query.NewService(store, m),
		Recorder: m,
		Health:   health,
		History:  audit.NewSQLRepository(db),
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, health); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("sensorhub stopped")
	return nil
}

// getConfigPath returns the configuration file path from the environment or the default.
func getConfigPath() string {
	if path := os.Getenv("SENSORHUB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectMQTT connects the notification client. Reconnects and lost
// connections are logged by the client.
func connectMQTT(cfg config.MQTTConfig, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg, log.Component("mqtt"))
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}

	log.Info("MQTT ready",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"topic_prefix", client.Topics().Prefix,
	)
	return client, nil
}

// categoryFilter builds the parser's category filter from config.
func categoryFilter(cfg *config.Config) ingest.CategoryFilter {
	if cfg.Ingest.CategoryFilter == config.FilterModeAllowList {
		return ingest.FilterAllowList(cfg.AllowList()...)
	}
	return ingest.FilterNone()
}

// healthCheck runs every registered component check once at startup.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
