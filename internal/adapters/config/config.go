package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"mercato/pkg/errors"
)

type Config struct {
	App           AppConfig
	Engine        EngineConfig
	API           APIConfig
	Metrics       MetricsConfig
	Telegram      TelegramConfig
	ErrorTracking ErrorTrackingConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"mercato"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

// EngineConfig bounds the negotiation round loop
type EngineConfig struct {
	MaxRounds      int           `envconfig:"ENGINE_MAX_ROUNDS" default:"8"`
	MaxDuration    time.Duration `envconfig:"ENGINE_MAX_DURATION" default:"30m"`
	RoundPacing    time.Duration `envconfig:"ENGINE_ROUND_PACING" default:"0s"`
	MaxConcurrent  int           `envconfig:"ENGINE_MAX_CONCURRENT_SESSIONS" default:"64"`
	StartRate      float64       `envconfig:"ENGINE_SESSION_START_RATE" default:"10"`
	StartBurst     int           `envconfig:"ENGINE_SESSION_START_BURST" default:"20"`
	EventBufferLen int           `envconfig:"ENGINE_EVENT_BUFFER" default:"256"`
}

type APIConfig struct {
	Addr         string        `envconfig:"API_ADDR" default:":8080"`
	ReadTimeout  time.Duration `envconfig:"API_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"20m"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	Addr    string `envconfig:"METRICS_ADDR" default:":9090"`
}

type TelegramConfig struct {
	Enabled  bool   `envconfig:"TELEGRAM_NOTIFICATIONS_ENABLED" default:"false"`
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID   int64  `envconfig:"TELEGRAM_CHAT_ID"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// WorkerConfig contains intervals for background workers
type WorkerConfig struct {
	StatsReporterInterval time.Duration `envconfig:"WORKER_STATS_REPORTER_INTERVAL" default:"1m"`
	StatsReporterEnabled  bool          `envconfig:"WORKER_STATS_REPORTER_ENABLED" default:"true"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Engine.MaxRounds < 1 {
		return errors.Wrapf(errors.ErrInvalidInput, "ENGINE_MAX_ROUNDS must be >= 1, got %d", c.Engine.MaxRounds)
	}
	if c.Engine.MaxDuration <= 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "ENGINE_MAX_DURATION must be positive, got %s", c.Engine.MaxDuration)
	}
	if c.Engine.MaxConcurrent < 1 {
		return errors.Wrapf(errors.ErrInvalidInput, "ENGINE_MAX_CONCURRENT_SESSIONS must be >= 1, got %d", c.Engine.MaxConcurrent)
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return errors.Wrap(errors.ErrInvalidInput, "TELEGRAM_BOT_TOKEN required when telegram notifications are enabled")
	}
	if c.ErrorTracking.Enabled && c.ErrorTracking.SentryDSN == "" {
		return errors.Wrap(errors.ErrInvalidInput, "SENTRY_DSN required when error tracking is enabled")
	}
	return nil
}

func (c MetricsConfig) String() string {
	if !c.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("enabled on %s", c.Addr)
}
