package bootstrap

import (
	"context"
	"net/http"
	"sync"

	"mercato/internal/adapters/config"
	"mercato/internal/adapters/telegram"
	"mercato/internal/api"
	"mercato/internal/domain/contract"
	"mercato/internal/events"
	"mercato/internal/metrics"
	"mercato/internal/services/negotiation"
	"mercato/internal/workers"
	"mercato/pkg/errors"
	"mercato/pkg/logger"
)

// Container holds all application dependencies and their lifecycle
// Components are organized in initialization order
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Event fan-out
	Bus *events.Broadcaster

	// Business logic
	Assembler    *contract.Assembler
	Orchestrator *negotiation.Orchestrator

	// Application layer
	HTTPServer    *api.Server
	MetricsServer *http.Server

	// Notifications
	TelegramNotifier *telegram.Notifier
	telegramCancel   func()

	// Background processing
	Scheduler *workers.Scheduler

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// NewContainer creates a new dependency container
func NewContainer(cfg *config.Config, tracker errors.Tracker) *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Config:       cfg,
		Log:          logger.Get(),
		ErrorTracker: tracker,
		Lifecycle:    NewLifecycle(),
		WG:           &sync.WaitGroup{},
		Context:      ctx,
		Cancel:       cancel,
	}
}

// MustInit initializes all components in the correct order
// Panics on any initialization error (fail-fast at startup)
func (c *Container) MustInit() {
	c.mustInitEvents()
	c.mustInitEngine()
	c.mustInitApplication()
	c.mustInitBackground()
	c.mustInitNotifications()
}

func (c *Container) mustInitEvents() {
	c.Bus = events.NewBroadcaster(c.Config.Engine.EventBufferLen)
}

func (c *Container) mustInitEngine() {
	c.Assembler = contract.NewAssembler()

	opts := negotiation.DefaultOptions()
	opts.MaxRounds = c.Config.Engine.MaxRounds
	opts.MaxDuration = c.Config.Engine.MaxDuration
	opts.RoundPacing = c.Config.Engine.RoundPacing

	c.Orchestrator = negotiation.New(c.Bus, c.Assembler, opts)
}

func (c *Container) mustInitApplication() {
	c.HTTPServer = api.NewServer(c.Config.API, c.Config.Engine, c.Orchestrator, c.Bus)

	if c.Config.Metrics.Enabled {
		c.MetricsServer = metrics.NewServer(c.Config.Metrics.Addr)
	}
}

func (c *Container) mustInitBackground() {
	c.Scheduler = workers.NewScheduler()

	if c.Config.Workers.StatsReporterEnabled {
		c.Scheduler.RegisterWorker(workers.NewStatsReporter(
			c.Orchestrator,
			c.Bus,
			c.Config.Workers.StatsReporterInterval,
			true,
		))
	}
}

func (c *Container) mustInitNotifications() {
	if !c.Config.Telegram.Enabled {
		return
	}

	notifier, err := telegram.NewNotifier(c.Config.Telegram.BotToken, c.Config.Telegram.ChatID)
	if err != nil {
		panic("failed to init telegram notifier: " + err.Error())
	}
	c.TelegramNotifier = notifier
}

// Start starts all background components
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	// Start background workers
	if err := c.Scheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "failed to start workers")
	}
	c.Log.Info("✓ Workers started")

	// Start Telegram notifier on its own event subscription
	if c.TelegramNotifier != nil {
		sub, cancel := c.Bus.Subscribe()
		c.telegramCancel = cancel
		c.TelegramNotifier.Start(c.Context, sub)
		c.Log.Info("✓ Telegram notifier started")
	}

	// Start metrics server
	if c.MetricsServer != nil {
		c.WG.Add(1)
		go func() {
			defer c.WG.Done()
			if err := c.MetricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				c.Log.Errorf("Metrics server failed: %v", err)
			}
		}()
		c.Log.Infow("✓ Metrics server started", "addr", c.Config.Metrics.Addr)
	}

	// Start HTTP server
	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.HTTPServer.Start(); err != nil {
			c.Log.Errorf("HTTP server failed: %v", err)
			c.Cancel() // Trigger shutdown on fatal HTTP error
		}
	}()

	c.Log.Info("✓ All systems operational")
	return nil
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")

	// Cancel application context to signal all components to stop
	c.Cancel()

	if c.telegramCancel != nil {
		c.telegramCancel()
	}

	c.Lifecycle.Shutdown(
		c.WG,
		c.HTTPServer,
		c.MetricsServer,
		c.Scheduler,
		c.Bus,
		c.ErrorTracker,
		c.Log,
	)
}
