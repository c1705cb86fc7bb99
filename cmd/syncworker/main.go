package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/cyntientops/field-sync/internal/apply"
	"github.com/cyntientops/field-sync/internal/channel"
	"github.com/cyntientops/field-sync/internal/config"
	"github.com/cyntientops/field-sync/internal/model"
	"github.com/cyntientops/field-sync/internal/netstatus"
	"github.com/cyntientops/field-sync/internal/repository/postgres"
	conflictService "github.com/cyntientops/field-sync/internal/service/conflict"
	notificationService "github.com/cyntientops/field-sync/internal/service/notification"
	syncService "github.com/cyntientops/field-sync/internal/service/sync"
	"github.com/cyntientops/field-sync/pkg/logger"
	"github.com/cyntientops/field-sync/pkg/messaging/redis"
	"github.com/cyntientops/field-sync/pkg/metrics"
	"github.com/cyntientops/field-sync/pkg/worker"
)

// workerEnv holds the deployment knobs that differ between worker replicas
// and are set per-pod rather than in the shared config file.
type workerEnv struct {
	HealthPort    int           `envconfig:"HEALTH_PORT" default:"8081"`
	DrainInterval time.Duration `envconfig:"DRAIN_INTERVAL"`
	PurgeInterval time.Duration `envconfig:"PURGE_INTERVAL" default:"1h"`
	AssumeOnline  bool          `envconfig:"ASSUME_ONLINE"`
}

func setupHealthCheck(port int, appLogger *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
			appLogger.ZL.Error().Err(err).Msg("health check server failed")
			os.Exit(1)
		}
	}()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	var env workerEnv
	if err := envconfig.Process("SYNCWORKER", &env); err != nil {
		log.Fatal().Err(err).Msg("failed to process environment")
	}
	if env.DrainInterval <= 0 {
		env.DrainInterval = cfg.Sync.DrainInterval
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		appLogger.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &appLogger.ZL)
	if err != nil {
		appLogger.Fatal(err, "failed to connect to Redis")
	}
	defer broker.Close()

	m := metrics.New("field_sync_worker")

	baseRepo := postgres.NewBaseRepository(db)
	operationRepo := postgres.NewOperationRepository(baseRepo)
	conflictRepo := postgres.NewConflictRepository(baseRepo)
	notificationRepo := postgres.NewNotificationRepository(baseRepo)
	preferenceRepo := postgres.NewPreferenceRepository(baseRepo)

	backendClient := &http.Client{Timeout: cfg.Sync.ApplyTimeout}
	appliers := apply.NewRegistry(apply.NewHTTPAppliers(cfg.Backend.BaseURL, cfg.Backend.APIKey, backendClient)...)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var monitor netstatus.Monitor
	if env.AssumeOnline {
		monitor = netstatus.StaticMonitor(true)
	} else {
		httpMonitor := netstatus.NewHTTPMonitor(
			cfg.Backend.BaseURL+cfg.Backend.HealthPath,
			cfg.Backend.ProbeInterval,
			appLogger,
		)
		go httpMonitor.Start(ctx)
		monitor = httpMonitor
	}

	syncSvc := syncService.NewService(operationRepo, appliers, monitor, syncService.Config{
		BatchSize:          cfg.Sync.BatchSize,
		MaxRetries:         cfg.Sync.MaxRetries,
		QueueCap:           cfg.Sync.QueueCap,
		ApplyTimeout:       cfg.Sync.ApplyTimeout,
		BackoffBase:        cfg.Sync.BackoffBase,
		BackoffMax:         cfg.Sync.BackoffMax,
		CompletedRetention: cfg.Sync.CompletedRetention,
	}, appLogger, m)

	conflictSvc := conflictService.NewService(
		conflictRepo,
		operationRepo,
		model.ResolutionStrategy(cfg.Sync.ConflictStrategy),
		appLogger,
	)
	syncSvc.SetConflictRecorder(conflictSvc)
	syncSvc.SetEventPublisher(broker)
	conflictSvc.SetDrainTrigger(syncSvc)

	resolver := channel.NewBackendResolver(cfg.Backend.BaseURL, cfg.Backend.APIKey, backendClient)
	channels := []channel.Channel{
		channel.NewPushChannel(cfg.Backend.PushGatewayURL, cfg.Backend.APIKey, backendClient),
		channel.NewInAppChannel(broker),
		channel.NewEmailChannel(cfg.Email, resolver),
		channel.NewSMSChannel(cfg.Backend.SMSGatewayURL, cfg.Backend.APIKey, backendClient, resolver),
	}

	notificationSvc := notificationService.NewService(
		notificationRepo,
		preferenceRepo,
		channels,
		notificationService.Config{
			BatchSize:          cfg.Notification.BatchSize,
			PreferenceCacheTTL: cfg.Notification.PreferenceCacheTTL,
		},
		appLogger,
		m,
	)

	setupHealthCheck(env.HealthPort, appLogger)

	go worker.NewDrainWorker(syncSvc, monitor, env.DrainInterval, appLogger).Start(ctx)
	go worker.NewNotificationWorker(notificationSvc, cfg.Notification.ProcessInterval, appLogger).Start(ctx)
	go worker.NewPurgeWorker(operationRepo, notificationRepo, cfg.Sync.CompletedRetention, env.PurgeInterval, appLogger).Start(ctx)

	appLogger.Info("sync worker started",
		"drain_interval", env.DrainInterval.String(),
		"health_port", env.HealthPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down sync worker...")
	stop()
}
