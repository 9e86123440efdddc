package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campusguard/internal/audit"
	"campusguard/internal/cache"
	"campusguard/internal/classifier"
	"campusguard/internal/compliance"
	"campusguard/internal/config"
	"campusguard/internal/consent"
	"campusguard/internal/constants"
	"campusguard/internal/database"
	"campusguard/internal/metrics"
	"campusguard/internal/models"
	"campusguard/internal/moderation"
	"campusguard/internal/retention"
	"campusguard/internal/service"
	"campusguard/internal/tracing"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("CampusGuard %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting CampusGuard")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	configureLogLevel(logger, cfg)

	tracingManager := tracing.NewManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() { _ = db.Close() }()

	registry := metrics.NewRegistry()

	auditLog := audit.NewLog(db, cfg.Audit, registry, func(err error, entries []models.AuditLogEntry) {
		registry.AddToCounter(metrics.MetricAuditDeadLetters, float64(len(entries)), nil,
			"Audit entries diverted to the dead-letter area")
		logger.WithError(err).WithField("count", len(entries)).Error("Audit dead-letter alert")
	}, logger)
	go auditLog.Start(ctx)
	defer auditLog.Stop()

	classificationCache := cache.New[*models.ClassificationRecord](cfg.Caches.ClassificationSize)
	consentCache := cache.New[models.ConsentStatus](cfg.Caches.ConsentSize)
	ageCache := cache.New[int](cfg.Caches.AgeSize)

	cls := classifier.New(cfg.Policy.Lexicon, classificationCache, registry, logger)
	consentResolver := consent.NewResolver(db, consentCache, logger)
	complianceEngine := compliance.NewEngine(db, ageCache, cfg.Policy.AdultAge, logger)
	moderationQueue := moderation.NewQueue(db, auditLog, audit.NewEntry, logger)

	pipeline := service.NewPipeline(
		cls, consentResolver, complianceEngine, db, moderationQueue,
		auditLog, audit.NewEntry, cfg.Policy.Retention, logger,
	)

	scheduler := retention.NewScheduler(db, auditLog, audit.NewEntry, cfg.Retention, registry, logger)
	go scheduler.Start(ctx)
	defer scheduler.Stop()

	watcher := config.NewPolicyWatcher(*configPath, logger)
	watcher.OnChange(func(updated *models.Config) {
		cls.ReloadLexicon(updated.Policy.Lexicon)
		complianceEngine.SetAdultAge(updated.Policy.AdultAge)
		pipeline.SetRetentionPolicies(updated.Policy.Retention)
		logger.WithField("policy_version", updated.Policy.Version).Info("Compliance policy reloaded")
	})
	if err := watcher.Start(ctx); err != nil {
		logger.Warnf("Failed to start policy watcher: %v", err)
	}

	server := NewServer(cfg, pipeline, moderationQueue, registry, logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Server shutdown error: %v", err)
	}

	logger.Info("CampusGuard stopped")
	return nil
}

func configureLogLevel(logger *logrus.Logger, cfg *models.Config) {
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled")
		return
	}
	if cfg.LogLevel == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	logger.SetLevel(level)
}
