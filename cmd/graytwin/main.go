// Gray Twin - digital twin gateway.
//
// This is the main entry point for the Gray Twin gateway. It keeps an
// in-memory twin of every provider it hears about, serialises all access
// through one command gateway, and fans change events out to listeners:
//   - Southbound: MQTT update topics, HTTP batch updates, HTTP pull sources
//   - Northbound: REST snapshots and writes, WebSocket event streams
//   - Listeners: SQLite history, InfluxDB, MQTT event relay
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/nerrad567/gray-twin/migrations"

	"github.com/nerrad567/gray-twin/internal/api"
	"github.com/nerrad567/gray-twin/internal/bridges/httppull"
	"github.com/nerrad567/gray-twin/internal/gateway"
	"github.com/nerrad567/gray-twin/internal/history"
	"github.com/nerrad567/gray-twin/internal/infrastructure/config"
	"github.com/nerrad567/gray-twin/internal/infrastructure/database"
	"github.com/nerrad567/gray-twin/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-twin/internal/infrastructure/logging"
	"github.com/nerrad567/gray-twin/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-twin/internal/intake"
	"github.com/nerrad567/gray-twin/internal/notify"
	"github.com/nerrad567/gray-twin/internal/session"
	"github.com/nerrad567/gray-twin/internal/snapshot"
	"github.com/nerrad567/gray-twin/internal/twin"
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

// retentionInterval is how often the history retention loop prunes.
const retentionInterval = time.Hour

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
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // startup sequence
	log := logging.Default()
	log.Info("starting Gray Twin",
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

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.FromConfig(cfg.Database))
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

	// Notification router. Started on a background context so events
	// queued during shutdown are still delivered before Stop returns.
	router := notify.NewRouter()
	router.SetLogger(log.Component("notify"))
	router.Start(context.Background())
	defer router.Stop()

	// Twin registry and command gateway
	registry := twin.NewRegistry(twin.Options{
		AutoDelete:     cfg.Twin.AutoDelete,
		CacheThreshold: cfg.Twin.CacheThreshold(),
	})
	registry.SetLogger(log.Component("twin"))

	gw := gateway.New(registry, router, gateway.Options{QueueSize: cfg.Twin.QueueSize})
	gw.SetLogger(log.Component("gateway"))

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		promReg, gwMetrics, metricsErr := newMetrics(router)
		if metricsErr != nil {
			return metricsErr
		}
		gw.SetMetrics(gwMetrics)
		metricsHandler = metrics.Handler(promReg)
		log.Info("metrics enabled", "path", cfg.Metrics.Path)
	}

	gw.Start(context.Background())
	defer func() {
		log.Info("stopping gateway")
		if stopErr := gw.Stop(cfg.Twin.ShutdownTimeout()); stopErr != nil {
			log.Error("error stopping gateway", "error", stopErr)
		}
	}()
	log.Info("gateway started", "queue_size", cfg.Twin.QueueSize)

	snaps := snapshot.NewBuilder(gw, snapshot.Options{
		PullTimeout: cfg.Twin.PullTimeout(),
	})
	snaps.SetLogger(log.Component("snapshot"))

	sessions := session.NewManager(gw, snaps, router)
	sessions.SetLogger(log.Component("session"))
	defer sessions.CloseAll()

	pusher := intake.NewPusher(gw)
	pusher.SetLogger(log.Component("intake"))

	// History listener
	var historyRepo history.Repository
	if cfg.History.Enabled {
		repo := history.NewSQLiteRepository(db.DB)
		recorder := history.NewRecorder(repo)
		recorder.SetLogger(log.Component("history"))
		sub, subErr := router.Subscribe(recorder.Patterns(), recorder)
		if subErr != nil {
			return fmt.Errorf("subscribing history recorder: %w", subErr)
		}
		defer sub.Close()
		if cfg.History.RetentionDays > 0 {
			keep := cfg.History.Retention()
			go recorder.RunRetention(ctx, keep, retentionInterval)
		}
		historyRepo = repo
		log.Info("history recording enabled", "retention_days", cfg.History.RetentionDays)
	}

	health := map[string]api.HealthChecker{"database": db}

	// InfluxDB listener (optional)
	influxClient, err := connectInflux(cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		sink := influxdb.NewSink(influxClient)
		sub, subErr := router.Subscribe(sink.Patterns(), sink)
		if subErr != nil {
			return fmt.Errorf("subscribing influxdb sink: %w", subErr)
		}
		defer sub.Close()
		health["influxdb"] = influxClient
	}

	// MQTT relay and southbound bridge (optional)
	mqttParts, err := startMQTT(ctx, cfg, router, pusher, log)
	if err != nil {
		return err
	}
	defer mqttParts.close(log)
	if mqttParts.client != nil {
		health["mqtt"] = mqttParts.client
	}

	// HTTP pull sources
	if len(cfg.Pull.Resources) > 0 {
		client := &http.Client{Timeout: cfg.Twin.PullTimeout()}
		n, pullErr := httppull.Register(ctx, gw, cfg.Pull.Resources, client)
		if pullErr != nil {
			return fmt.Errorf("registering pull resources: %w", pullErr)
		}
		log.Info("pull resources registered", "count", n)
	}

	// API server
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log.Component("api"),
		Sessions:    sessions,
		Pusher:      pusher,
		Router:      router,
		History:     historyRepo,
		Metrics:     metricsHandler,
		MetricsPath: cfg.Metrics.Path,
		Health:      health,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if mqttParts.bridge != nil {
		apiServer.SetBridge(mqttParts.bridge)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify infrastructure is reachable before declaring ready
	if err := healthCheck(ctx, health); err != nil {
		log.Warn("initial health check failed", "error", err)
	}

	log.Info("Gray Twin started successfully")

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info("shutdown signal received, stopping services...")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. MQTT bridge, relay subscription, client
	// 3. InfluxDB sink and client
	// 4. History recorder subscription
	// 5. Sessions
	// 6. Gateway
	// 7. Notification router
	// 8. Database

	log.Info("Gray Twin stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYTWIN_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYTWIN_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newMetrics creates the Prometheus registry with runtime collectors,
// gateway metrics, and notification router metrics.
func newMetrics(router *notify.Router) (*prometheus.Registry, gateway.Metrics, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gwMetrics, err := metrics.NewGateway(reg)
	if err != nil {
		return nil, nil, fmt.Errorf("registering gateway metrics: %w", err)
	}
	if err := metrics.RegisterRouter(reg, router); err != nil {
		return nil, nil, err
	}
	return reg, gwMetrics, nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - checks: Named components to check
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
