// Command pulsecore runs the telemetry ingestion service: it bridges
// an MQTT broker into SQLite-backed device and reading stores, and
// fans live events out to WebSocket dashboards.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pulsegrid/pulse-core/internal/api"
	"github.com/pulsegrid/pulse-core/internal/device"
	"github.com/pulsegrid/pulse-core/internal/infrastructure/config"
	"github.com/pulsegrid/pulse-core/internal/infrastructure/database"
	"github.com/pulsegrid/pulse-core/internal/infrastructure/influxdb"
	"github.com/pulsegrid/pulse-core/internal/infrastructure/logging"
	"github.com/pulsegrid/pulse-core/internal/infrastructure/mqtt"
	"github.com/pulsegrid/pulse-core/internal/ingest"
	"github.com/pulsegrid/pulse-core/internal/live"
	"github.com/pulsegrid/pulse-core/internal/telemetry"
	_ "github.com/pulsegrid/pulse-core/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "pulsecore: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := logging.New(cfg.Logging, version)
	logger.Info("starting pulsecore", "version", version)

	// Storage.
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Best effort on shutdown

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	devices := device.NewSQLiteRepository(db.DB)
	readings := telemetry.NewSQLiteRepository(db.DB)

	health := map[string]api.HealthChecker{
		"database": db,
	}

	// Optional time-series mirror. A disabled or unreachable mirror
	// downgrades to SQLite-only operation.
	var mirror ingest.Mirror
	tsdb, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case err == nil:
		tsdb.SetOnError(func(err error) {
			logger.Warn("influxdb write failed", "error", err)
		})
		defer tsdb.Close() //nolint:errcheck // Best effort on shutdown
		mirror = tsdb
		health["influxdb"] = tsdb
		logger.Info("influxdb mirror enabled", "url", cfg.InfluxDB.URL)
	case errors.Is(err, influxdb.ErrDisabled):
		logger.Info("influxdb mirror disabled")
	default:
		logger.Warn("influxdb mirror unavailable, continuing without it", "error", err)
	}

	// MQTT bridge.
	broker, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to mqtt broker: %w", err)
	}
	defer broker.Close() //nolint:errcheck // Best effort on shutdown
	broker.SetLogger(logger)
	health["mqtt"] = broker

	// Live fan-out. The hub must exist before the first subscription
	// so no inbound message ever sees a nil broadcaster.
	hub := live.NewHub(broker, logger)

	pipeline := ingest.New(devices, readings, hub, mirror,
		cfg.GetStorageWriteTimeout(), logger)

	qos := byte(cfg.MQTT.QoS) // #nosec G115 -- validated to 0..2 by config
	for _, topic := range mqtt.DefaultSubscriptions() {
		if err := broker.Subscribe(topic, qos, pipeline.Handle); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}
	logger.Info("mqtt bridge ready", "subscriptions", broker.SubscriptionCount())

	// Retention.
	janitor := telemetry.NewJanitor(readings,
		cfg.GetRetentionWindow(), cfg.GetPurgeInterval(), logger)
	janitor.Start(ctx)

	// HTTP.
	server := api.New(api.Deps{
		Config:   cfg,
		Logger:   logger,
		Devices:  devices,
		Readings: readings,
		Hub:      hub,
		Commands: broker,
		Health:   health,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	if err := server.Close(); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	janitor.Wait()

	logger.Info("shutdown complete")
	return nil
}
