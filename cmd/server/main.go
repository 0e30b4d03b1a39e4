package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/pa-evaluation-engine/internal/api"
	"github.com/pa-evaluation-engine/internal/audit"
	"github.com/pa-evaluation-engine/internal/cache"
	"github.com/pa-evaluation-engine/internal/config"
	"github.com/pa-evaluation-engine/internal/database"
	"github.com/pa-evaluation-engine/internal/domain"
	"github.com/pa-evaluation-engine/internal/policy"
	"github.com/pa-evaluation-engine/internal/service"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := newLogger(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting PA evaluation engine")

	// Optional external policy store overlaying the built-in table.
	var policyStore domain.PolicyStore
	if cfg.Policy.SQLitePath != "" {
		sqliteStore, err := policy.NewSQLiteStore(cfg.Policy.SQLitePath)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open policy store")
		}
		defer sqliteStore.Close()
		policyStore = sqliteStore
	}
	resolver := policy.NewTableResolver(logger, policyStore)

	// Optional audit store. A missing audit database degrades to an
	// unrecorded pipeline rather than failing startup.
	var auditStore domain.AuditStore
	if cfg.Database.Host != "" {
		migrations, err := database.NewMigrationRunner(database.URL(cfg.Database), cfg.Database.MigrationsPath, logger)
		if err == nil {
			if err := migrations.Up(); err != nil {
				logger.WithError(err).Warn("Audit schema migration failed")
			}
			migrations.Close()
		}

		pg, err := audit.NewPostgresStoreFromURL(database.URL(cfg.Database))
		if err != nil {
			logger.WithError(err).Warn("Audit database unavailable; evaluations will not be recorded")
		} else {
			defer pg.Close()
			auditStore = pg
		}
	}

	evalCache := cache.New(logger, cfg.Cache)
	engine := service.NewCriteriaEngine(logger, cfg.Evaluation)
	evaluation := service.NewEvaluationService(logger, engine, resolver, evalCache, auditStore)

	server := api.NewServer(logger, cfg, evaluation, auditStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.Info("Server stopped")
}

func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logger.SetOutput(os.Stdout)
	return logger
}
