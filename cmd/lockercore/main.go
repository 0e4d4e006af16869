// Locker Core - Smart Locker Delivery Platform
//
// This is the main entry point for the Locker Core service: compartment
// allocation, one-time pickup credentials, the delivery lifecycle state
// machine, and hardware command dispatch to cabinet controllers over MQTT.
//
// The service is offline-tolerant by design: a broker outage degrades
// hardware dispatch to simulated commands while every delivery operation
// keeps working.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/parcelbay/locker-core/migrations"

	"github.com/parcelbay/locker-core/internal/api"
	"github.com/parcelbay/locker-core/internal/delivery"
	"github.com/parcelbay/locker-core/internal/infrastructure/config"
	"github.com/parcelbay/locker-core/internal/infrastructure/database"
	"github.com/parcelbay/locker-core/internal/infrastructure/influxdb"
	"github.com/parcelbay/locker-core/internal/infrastructure/logging"
	"github.com/parcelbay/locker-core/internal/infrastructure/mqtt"
	"github.com/parcelbay/locker-core/internal/locker"
	"github.com/parcelbay/locker-core/internal/sweep"
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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Locker Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database and apply migrations
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Domain stores
	registry := locker.NewSQLiteRepository(db.DB)
	store := delivery.NewStore(db.DB)

	// Hardware gateway. Connect() is non-blocking: a broker outage at boot
	// leaves the gateway in its retry sequence (and eventually offline)
	// while the rest of the service starts normally.
	gateway := mqtt.New(cfg.MQTT)
	gateway.SetLogger(log.Component("mqtt"))
	defer func() {
		log.Info("closing hardware gateway")
		if closeErr := gateway.Close(); closeErr != nil {
			log.Error("error closing gateway", "error", closeErr)
		}
	}()
	// Delivery telemetry (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		influxClient = nil
		log.Info("telemetry disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// Gateway state transitions are logged and, when telemetry is on,
	// recorded as time-series points for broker availability tracking.
	gateway.SetOnConnect(func() {
		log.Info("hardware gateway connected")
		if influxClient != nil {
			influxClient.WriteGatewayState(mqtt.StateConnected.String())
		}
	})
	gateway.SetOnDisconnect(func(err error) {
		log.Warn("hardware gateway connection lost", "error", err)
		if influxClient != nil {
			influxClient.WriteGatewayState(mqtt.StateDisconnected.String())
		}
	})

	if err := gateway.Connect(ctx); err != nil {
		return fmt.Errorf("starting hardware gateway: %w", err)
	}
	log.Info("hardware gateway starting",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Realtime event feed hub, shared by the delivery manager (as its event
	// sink) and the API server (as its WebSocket hub).
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	// Delivery lifecycle manager
	dispatcher := delivery.NewDispatcher(gateway, byte(cfg.MQTT.QoS), log)
	managerDeps := delivery.Deps{
		Store:      store,
		Registry:   registry,
		Dispatcher: dispatcher,
		Notifier:   delivery.NewLogNotifier(log.Component("notify")),
		Events:     hub,
		Logger:     log.Component("delivery"),
	}
	if influxClient != nil {
		managerDeps.Telemetry = influxClient
	}
	manager, err := delivery.NewManager(delivery.Config{
		TTL:              cfg.TTL(),
		PickupCodeLength: cfg.Delivery.PickupCodeLength,
		CodeRetries:      cfg.Delivery.CodeRetries,
	}, managerDeps)
	if err != nil {
		return fmt.Errorf("creating delivery manager: %w", err)
	}
	log.Info("delivery manager initialised", "pickup_window", cfg.TTL())

	// Device status feedback: the gateway forwards raw messages, the
	// manager owns every domain-state consequence. The subscription is
	// tracked even while the gateway is degraded and restored on connect.
	topics := mqtt.Topics{}
	subErr := gateway.Subscribe(topics.AllCabinetStatus(), byte(cfg.MQTT.QoS), func(topic string, payload []byte) error {
		hardwareID, ok := mqtt.HardwareIDFromStatusTopic(topic)
		if !ok {
			log.Warn("status message on unexpected topic", "topic", topic)
			return nil
		}
		if reconcileErr := manager.ReconcileStatus(ctx, hardwareID, payload); reconcileErr != nil {
			log.Warn("status reconciliation failed",
				"hardware_id", hardwareID,
				"error", reconcileErr,
			)
		}
		return nil
	})
	if subErr != nil && !errors.Is(subErr, mqtt.ErrNotConnected) {
		return fmt.Errorf("subscribing to cabinet status: %w", subErr)
	}

	// Expiry sweep
	sweeper := sweep.New(cfg.SweepEvery(), manager, log.Component("sweep"))
	sweeper.Start(ctx)
	defer func() {
		log.Info("stopping expiry sweep")
		sweeper.Close()
	}()
	log.Info("expiry sweep started", "interval", cfg.SweepEvery())

	// Occupancy sampler: when telemetry is on, periodically record each
	// cabinet's fill level alongside the gateway state.
	if influxClient != nil {
		go sampleOccupancy(ctx, cfg.SweepEvery(), registry, gateway, influxClient, log)
	}

	// HTTP API
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.Component("api"),
		Manager:  manager,
		Registry: registry,
		Gateway:  gateway,
		Hub:      hub,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify the hard dependencies. The gateway is deliberately excluded:
	// a broker outage is the documented degraded mode, not a boot failure.
	if err := healthCheck(ctx, db, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Expiry sweep
	// 3. InfluxDB (if enabled)
	// 4. Hardware gateway
	// 5. Database

	log.Info("Locker Core stopped")
	return nil
}

// sampleOccupancy periodically writes per-cabinet fill levels and the
// current gateway state to the telemetry store.
func sampleOccupancy(ctx context.Context, interval time.Duration, registry locker.Repository, gateway *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cabinets, err := registry.ListCabinets(ctx, "")
			if err != nil {
				log.Warn("occupancy sampling failed", "error", err)
				continue
			}
			for _, c := range cabinets {
				influxClient.WriteOccupancy(c.ID, c.Occupancy.Occupied, c.Occupancy.Total)
			}
			influxClient.WriteGatewayState(gateway.State().String())
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses LOCKERCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LOCKERCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the hard infrastructure dependencies are healthy.
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}
