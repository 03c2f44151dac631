package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nitpack/tgfilebotter2/internal/alert"
	"github.com/nitpack/tgfilebotter2/internal/api"
	"github.com/nitpack/tgfilebotter2/internal/metrics"
	"github.com/nitpack/tgfilebotter2/internal/session"
	"github.com/nitpack/tgfilebotter2/internal/storage"
	"github.com/nitpack/tgfilebotter2/internal/telegram"
	"github.com/nitpack/tgfilebotter2/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := newLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		dbConfig := storage.DatabaseConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			UseInMemory: cfg.Database.UseInMemory,
		}
		dbCtx, dbCancel := context.WithTimeout(context.Background(), 60*time.Second)
		store, err = storage.NewPostgresStorage(dbCtx, dbConfig, logger)
		dbCancel()
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Alert delivery goes through the ops bot; without one configured
	// alerts are dropped.
	var alerts alert.Notifier = alert.Nop{}
	var stopAlerts func()
	if cfg.Telegram.AdminToken != "" && cfg.Telegram.OpsChatID != 0 {
		opsAPI, err := telegram.Connect(cfg.Telegram.AdminToken)
		if err != nil {
			logger.Fatal("Failed to connect ops bot", zap.Error(err))
		}
		notifier := alert.NewTelegramNotifier(opsAPI, cfg.Telegram.OpsChatID, logger, m)
		notifier.Start()
		alerts = notifier
		stopAlerts = notifier.Stop
	} else {
		logger.Info("Alert delivery disabled, no ops bot configured")
	}

	// Initialize the session manager and bring up all persisted bots
	manager := session.NewManager(store, telegram.Connect, logger, alerts, m, session.Options{
		OperatorID:      cfg.Telegram.OperatorID,
		PollTimeout:     cfg.Session.PollTimeout,
		PollRetryDelay:  cfg.Session.PollRetryDelay,
		MaxPollErrors:   cfg.Session.MaxPollErrors,
		HealthInterval:  cfg.Session.HealthInterval,
		HealthThreshold: cfg.Session.HealthThreshold,
		StopTimeout:     cfg.Session.StopTimeout,
	})
	if err := manager.LoadAll(context.Background()); err != nil {
		logger.Fatal("Failed to load bot sessions", zap.Error(err))
	}

	// Admin API
	auth := api.NewAuth(cfg.Server.AdminUser, cfg.Server.AdminPassHash, cfg.Server.JWTSecret, cfg.Server.TokenTTL)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewServer(logger, store, manager, auth, alerts, registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Admin API listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Admin API server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Admin API shutdown failed", zap.Error(err))
	}

	manager.StopAll()
	if stopAlerts != nil {
		stopAlerts()
	}
	logger.Info("Shutdown complete")
}

func newLogger(cfg config.LoggerConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}
