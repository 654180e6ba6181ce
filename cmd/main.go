package main

import (
	"os"
	"os/signal"
	"syscall"

	"mercato/internal/adapters/config"
	"mercato/internal/adapters/errors/noop"
	"mercato/internal/adapters/errors/sentry"
	"mercato/internal/bootstrap"
	"mercato/pkg/errors"
	"mercato/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	// Initialize error tracker
	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	// Build and start the dependency container
	container := bootstrap.NewContainer(cfg, errorTracker)
	container.MustInit()

	if err := container.Start(); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	log.Infow("System initialized",
		"api", cfg.API.Addr,
		"metrics", cfg.Metrics.String(),
		"max_rounds", cfg.Engine.MaxRounds,
		"max_duration", cfg.Engine.MaxDuration,
	)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	container.Shutdown()
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}
