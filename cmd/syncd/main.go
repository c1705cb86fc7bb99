package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cyntientops/field-sync/internal/apply"
	"github.com/cyntientops/field-sync/internal/channel"
	"github.com/cyntientops/field-sync/internal/config"
	"github.com/cyntientops/field-sync/internal/model"
	"github.com/cyntientops/field-sync/internal/netstatus"
	"github.com/cyntientops/field-sync/internal/repository/postgres"
	"github.com/cyntientops/field-sync/internal/router"
	conflictService "github.com/cyntientops/field-sync/internal/service/conflict"
	notificationService "github.com/cyntientops/field-sync/internal/service/notification"
	syncService "github.com/cyntientops/field-sync/internal/service/sync"
	"github.com/cyntientops/field-sync/pkg/auth"
	"github.com/cyntientops/field-sync/pkg/logger"
	"github.com/cyntientops/field-sync/pkg/messaging/redis"
	"github.com/cyntientops/field-sync/pkg/metrics"
	"github.com/cyntientops/field-sync/pkg/security"
	"github.com/cyntientops/field-sync/pkg/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
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

	m := metrics.New("field_sync")

	baseRepo := postgres.NewBaseRepository(db)
	operationRepo := postgres.NewOperationRepository(baseRepo)
	conflictRepo := postgres.NewConflictRepository(baseRepo)
	notificationRepo := postgres.NewNotificationRepository(baseRepo)
	preferenceRepo := postgres.NewPreferenceRepository(baseRepo)

	backendClient := &http.Client{Timeout: cfg.Sync.ApplyTimeout}
	appliers := apply.NewRegistry(apply.NewHTTPAppliers(cfg.Backend.BaseURL, cfg.Backend.APIKey, backendClient)...)

	monitor := netstatus.NewHTTPMonitor(
		cfg.Backend.BaseURL+cfg.Backend.HealthPath,
		cfg.Backend.ProbeInterval,
		appLogger,
	)

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

	jwtSvc := auth.NewJWTService(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.ExpiryHours)*time.Hour)
	hasher := security.NewBcryptHasher(0)

	engine := router.New(router.Dependencies{
		Config:        cfg,
		Logger:        appLogger,
		DB:            db,
		JWT:           jwtSvc,
		Hasher:        hasher,
		Sync:          syncSvc,
		Conflicts:     conflictSvc,
		Notifications: notificationSvc,
	})

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	go monitor.Start(workerCtx)
	go worker.NewDrainWorker(syncSvc, monitor, cfg.Sync.DrainInterval, appLogger).Start(workerCtx)
	go worker.NewNotificationWorker(notificationSvc, cfg.Notification.ProcessInterval, appLogger).Start(workerCtx)
	go worker.NewPurgeWorker(operationRepo, notificationRepo, cfg.Sync.CompletedRetention, time.Hour, appLogger).Start(workerCtx)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: engine,
	}

	go func() {
		appLogger.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(err, "failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down server...")

	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatal(err, "server forced to shutdown")
	}

	appLogger.Info("server exited properly")
}
