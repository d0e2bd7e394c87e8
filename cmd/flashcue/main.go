// FlashCue Core - stream event to scene action trigger engine
//
// This is the main entry point for FlashCue Core. It watches platform events
// (gifted subscriptions, chat commands) relayed over MQTT and briefly flashes
// scene elements on connected streaming-software instances in response.
//
// The scene-control and EventSub bridges are separate processes; Core only
// speaks MQTT to them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nerrad567/flashcue-core/internal/app"
	"github.com/nerrad567/flashcue-core/internal/flash"
	"github.com/nerrad567/flashcue-core/internal/infrastructure/config"
	"github.com/nerrad567/flashcue-core/internal/infrastructure/database"
	"github.com/nerrad567/flashcue-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/flashcue-core/internal/infrastructure/logging"
	"github.com/nerrad567/flashcue-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/flashcue-core/migrations"
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

// envFile is loaded before the config so FLASHCUE_* overrides can live beside
// the binary. A missing file is fine.
const envFile = ".env"

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
	log := logging.Default()
	log.Info("starting FlashCue Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := migrations.Apply(ctx, db); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.Watch(func(up bool, err error) {
		if up {
			log.Info("MQTT link up", "reconnects", mqttClient.Stats().Reconnects)
			return
		}
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// InfluxDB is optional; flash telemetry is skipped without it.
	var influxClient *influxdb.Client
	var points flash.PointWriter
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetLogger(log.Component("influxdb"))
		points = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	application, err := app.New(app.Deps{
		Config:  cfg,
		Logger:  log,
		DB:      db,
		Bus:     mqttClient,
		Points:  points,
		Broker:  mqttClient,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("building application: %w", err)
	}
	if err := application.Start(ctx); err != nil {
		if closeErr := application.Close(); closeErr != nil {
			log.Error("error during startup cleanup", "error", closeErr)
		}
		return fmt.Errorf("starting application: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal",
		"api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"broadcaster_id", cfg.Platform.BroadcasterID,
	)

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if err := application.Close(); err != nil {
		log.Error("error stopping application", "error", err)
	}

	// Deferred Close() calls run in reverse order: InfluxDB, MQTT, database.
	log.Info("FlashCue Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FLASHCUE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FLASHCUE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadEnvFile exports variables from path without overriding ones already
// set in the environment.
func loadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
