// MIRV Relay Core
//
// Entry point for the MIRV relay: the hub that rovers and garages connect
// to over persistent WebSockets, and that mission control talks to over
// HTTP. The relay validates device state updates, tracks the connected
// fleet, and bridges synchronous operator requests onto the async device
// transport.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mirv-rover/relay-core/internal/api"
	"github.com/mirv-rover/relay-core/internal/audit"
	"github.com/mirv-rover/relay-core/internal/auth"
	"github.com/mirv-rover/relay-core/internal/fleet"
	"github.com/mirv-rover/relay-core/internal/infrastructure/config"
	"github.com/mirv-rover/relay-core/internal/infrastructure/influxdb"
	"github.com/mirv-rover/relay-core/internal/infrastructure/logging"
	"github.com/mirv-rover/relay-core/internal/infrastructure/mqtt"
	"github.com/mirv-rover/relay-core/internal/relay"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
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
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting MIRV relay core", "version", version, "commit", commit)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Connection-event audit log (optional)
	var auditLog *audit.Log
	if cfg.Audit.Enabled {
		auditLog, err = audit.Open(cfg.Audit.Path)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer func() {
			log.Info("closing audit log")
			if closeErr := auditLog.Close(); closeErr != nil {
				log.Error("error closing audit log", "error", closeErr)
			}
		}()
		log.Info("audit log open", "path", cfg.Audit.Path)
	} else {
		log.Info("audit log disabled")
	}

	// MQTT state fan-out (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT fan-out disabled")
	}

	// InfluxDB telemetry history (optional)
	var influxClient *influxdb.Client
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Token validation for operators and devices
	authProvider := auth.NewJWTProvider(cfg.Auth)

	// Fleet registry
	registryOpts := []fleet.RegistryOption{fleet.WithLogger(log.With("component", "fleet"))}
	if cfg.Relay.DuplicatePolicy == config.DuplicatePolicyReplace {
		registryOpts = append(registryOpts, fleet.WithReplacePolicy())
	}
	registry := fleet.NewRegistry(authProvider, registryOpts...)

	// Relay gateway
	gateway := relay.NewGateway(registry, cfg.CallTimeout(),
		relay.WithLogger(log.With("component", "relay")))

	// API server (HTTP + device WebSocket)
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log.With("component", "api"),
		Registry: registry,
		Gateway:  gateway,
		Auth:     authProvider,
		MQTT:     mqttClient,
		Influx:   influxClient,
		Audit:    auditLog,
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
	log.Info("relay core running",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"ws_path", cfg.WebSocket.Path,
	)

	<-ctx.Done()
	log.Info("shutdown signal received")

	return nil
}

// getConfigPath returns the configuration file path.
// Uses MIRV_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MIRV_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
