// BacPipes - BACnet to MQTT field-bus bridge
//
// This is the main entry point for the BacPipes worker. The worker:
//   - Polls BACnet/IP devices at per-point intervals and publishes
//     readings to MQTT (individual and per-equipment batch topics)
//   - Executes MQTT-initiated BACnet write commands with correlated results
//   - Runs network discovery jobs queued in the configuration store
//   - Bridges the published point stream into the time-series store
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ak085/bacpipes/internal/bacnet"
	"github.com/ak085/bacpipes/internal/configstore"
	"github.com/ak085/bacpipes/internal/discovery"
	"github.com/ak085/bacpipes/internal/engine"
	"github.com/ak085/bacpipes/internal/infrastructure/config"
	"github.com/ak085/bacpipes/internal/infrastructure/database"
	"github.com/ak085/bacpipes/internal/infrastructure/influxdb"
	"github.com/ak085/bacpipes/internal/infrastructure/logging"
	"github.com/ak085/bacpipes/internal/infrastructure/mqtt"
	"github.com/ak085/bacpipes/internal/sink"
	_ "github.com/ak085/bacpipes/migrations" // register embedded schema
)

// defaultConfigPath is used when BACPIPES_CONFIG is not set.
const defaultConfigPath = "config.yaml"

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	fmt.Printf("BacPipes %s (%s) built %s\n", version, commit, date)

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getConfigPath returns the configuration file path, honouring the
// BACPIPES_CONFIG environment variable.
func getConfigPath() string {
	if path := os.Getenv("BACPIPES_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads the YAML config when present, falling back to pure
// environment configuration for containerised deployments that ship no
// file.
func loadConfig() (*config.Config, error) {
	path := getConfigPath()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && os.Getenv("BACPIPES_CONFIG") == "" {
			return config.LoadFromEnv()
		}
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return config.Load(path)
}

// run is the actual application logic, separated from main for testability.
// Startup is ordered config → logging → database → mqtt → bacnet →
// engine/discovery/sink; shutdown runs in reverse.
func run(ctx context.Context) error {
	// 1. Configuration (fatal on error)
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	// 2. Logging
	logger := logging.New(cfg.Logging, version)
	logger.Info("starting BacPipes worker",
		"version", version,
		"bacnet_endpoint", fmt.Sprintf("%s:%d", cfg.BACnet.IP, cfg.BACnet.Port),
		"timezone", cfg.Site.Timezone,
	)

	// 3. Configuration store (fatal on error)
	db, err := database.Open(database.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		Name:         cfg.Database.Name,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return fmt.Errorf("connecting to configuration store: %w", err)
	}
	defer db.Close() //nolint:errcheck // Shutdown path
	logger.Info("configuration store connected", "dsn", db.DSN())

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	store := configstore.New(db, logger.Component("configstore"))

	// 4. Store-resident settings override the static configuration: the
	// admin application's settings rows are the source of truth.
	location := cfg.Location()
	if settings, err := store.LoadSystemSettings(ctx); err == nil && settings.Timezone != "" {
		if loc, tzErr := time.LoadLocation(settings.Timezone); tzErr == nil {
			location = loc
			logger.Info("timezone loaded from store", "timezone", settings.Timezone)
		} else {
			logger.Warn("store timezone invalid, keeping configured default",
				"timezone", settings.Timezone, "error", tzErr)
		}
	} else if err != nil && !errors.Is(err, configstore.ErrNotFound) {
		logger.Warn("loading system settings failed", "error", err)
	}

	batchEnabled := false
	if settings, err := store.LoadMqttSettings(ctx); err == nil {
		cfg.MQTT.Broker.Host = settings.Broker
		cfg.MQTT.Broker.Port = settings.Port
		if settings.ClientID != "" {
			cfg.MQTT.Broker.ClientID = settings.ClientID
		}
		batchEnabled = settings.EnableBatchPublishing
		logger.Info("mqtt settings loaded from store",
			"broker", fmt.Sprintf("%s:%d", settings.Broker, settings.Port),
			"batch_publishing", batchEnabled,
		)
	} else if !errors.Is(err, configstore.ErrNotFound) {
		logger.Warn("loading mqtt settings failed, using configured defaults", "error", err)
	}

	// 5. MQTT (fatal on error)
	mqttClient, err := mqtt.Connect(cfg.MQTT, logger.Component("mqtt"))
	if err != nil {
		return fmt.Errorf("connecting to MQTT broker: %w", err)
	}
	defer mqttClient.Close() //nolint:errcheck // Shutdown path
	logger.Info("mqtt connected", "broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port))

	// 6. BACnet endpoint (fatal on error)
	bacnetClient, err := bacnet.NewClient(bacnet.ClientOptions{
		LocalAddress: fmt.Sprintf("%s:%d", cfg.BACnet.IP, cfg.BACnet.Port),
		Identity:     bacnet.NewDeviceIdentity(cfg.BACnet.DeviceID, cfg.BACnet.DeviceName, cfg.BACnet.VendorID),
		Policy: bacnet.RetryPolicy{
			BaseTimeout:        cfg.GetReadTimeout(),
			MaxRetries:         cfg.BACnet.ReadRetries,
			RetryDelay:         500 * time.Millisecond,
			ExponentialBackoff: true,
		},
		WriteTimeout: cfg.GetWriteTimeout(),
		Logger:       logger.Component("bacnet"),
	})
	if err != nil {
		return fmt.Errorf("opening BACnet endpoint: %w", err)
	}
	defer bacnetClient.Close() //nolint:errcheck // Shutdown path
	logger.Info("bacnet endpoint open",
		"address", bacnetClient.LocalAddr().String(),
		"device_id", cfg.BACnet.DeviceID,
	)

	// 7. Engine
	poller := engine.NewPoller(engine.PollerOptions{
		Reader:       bacnetClient,
		Publisher:    mqttClient,
		Store:        store,
		Location:     location,
		DeviceFanout: cfg.Polling.DeviceFanout,
		Logger:       logger.Component("poller"),
	})
	executor := engine.NewWriteExecutor(bacnetClient, mqttClient, location, logger.Component("writer"))

	eng, err := engine.New(engine.Options{
		Poller:       poller,
		Executor:     executor,
		Store:        store,
		TickInterval: cfg.GetTickInterval(),
		BatchEnabled: batchEnabled,
		Logger:       logger.Component("engine"),
	})
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	if err := eng.SubscribeCommands(mqttClient); err != nil {
		return fmt.Errorf("subscribing to write commands: %w", err)
	}
	eng.Start(ctx)
	defer eng.Stop()

	// 8. Discovery worker, when enabled (failures inside a job are
	// non-fatal; they are recorded on the job)
	var worker *discovery.Worker
	if cfg.Discovery.Enabled {
		worker, err = discovery.NewWorker(discovery.Options{
			Store: store,
			ClientFactory: func(localAddress string, deviceID uint32) (discovery.Client, error) {
				return bacnet.NewClient(bacnet.ClientOptions{
					LocalAddress: localAddress,
					Identity:     bacnet.NewDeviceIdentity(deviceID, "BacPipes Discovery", cfg.BACnet.VendorID),
					Logger:       logger.Component("discovery-bacnet"),
				})
			},
			PollInterval:   cfg.GetJobPollInterval(),
			SubnetMaskBits: cfg.BACnet.SubnetMaskBits,
			Logger:         logger.Component("discovery"),
		})
		if err != nil {
			return fmt.Errorf("building discovery worker: %w", err)
		}
		worker.Start(ctx)
		defer worker.Stop()
	}

	// 9. Time-series sink bridge (own MQTT session, own store connection)
	var sinkMQTT *mqtt.Client
	var influxClient *influxdb.Client
	if cfg.Sink.Enabled && cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to time-series store: %w", err)
		}
		defer influxClient.Close() //nolint:errcheck // Shutdown path
		influxClient.SetOnError(func(err error) {
			logger.Error("time-series write failed", "error", err)
		})

		sinkCfg := cfg.MQTT
		sinkCfg.Broker.ClientID = cfg.MQTT.Broker.ClientID + cfg.Sink.ClientIDSuffix
		sinkMQTT, err = mqtt.Connect(sinkCfg, logger.Component("sink-mqtt"))
		if err != nil {
			return fmt.Errorf("connecting sink MQTT session: %w", err)
		}
		defer sinkMQTT.Close() //nolint:errcheck // Shutdown path

		bridge := sink.NewBridge(influxClient, logger.Component("sink"))
		if err := bridge.Subscribe(sinkMQTT); err != nil {
			return fmt.Errorf("subscribing sink bridge: %w", err)
		}
		logger.Info("time-series sink bridge running", "bucket", cfg.InfluxDB.Bucket)
	}

	logger.Info("BacPipes worker started")

	// Wait for shutdown signal
	<-ctx.Done()

	logger.Info("shutdown signal received, stopping")
	// Deferred closes run in reverse order: sink, discovery, engine,
	// bacnet, mqtt (graceful offline status), database.
	return nil
}
