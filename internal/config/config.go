// Package config содержит логику чтения конфигурации сервиса учёта баллонов.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress   string `env:"RUN_ADDRESS"`
	DatabaseURI  string `env:"DATABASE_URI"`
	RedisAddress string `env:"REDIS_ADDRESS"`
	NATSURL      string `env:"NATS_URL"`

	APISecret string `env:"API_SECRET" envDefault:"sodatrack-secret"`

	TelegramBotToken    string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramAPIURL      string `env:"TELEGRAM_API_URL" envDefault:"https://api.telegram.org"`
	NotifyWebhookURL    string `env:"NOTIFY_WEBHOOK_URL"`
	NotifyWebhookSecret string `env:"NOTIFY_WEBHOOK_SECRET"`

	SiphonCapacity      float64       `env:"SIPHON_CAPACITY" envDefault:"60"`
	InactivityThreshold time.Duration `env:"INACTIVITY_THRESHOLD" envDefault:"72h"`
	ReminderSchedule    string        `env:"REMINDER_SCHEDULE" envDefault:"0 9 * * *"`
	ReportSchedule      string        `env:"REPORT_SCHEDULE" envDefault:"0 10 * * 1"`
	SweepParallelism    int           `env:"SWEEP_PARALLELISM" envDefault:"4"`
	SweepTimeout        time.Duration `env:"SWEEP_TIMEOUT" envDefault:"10m"`
	PromptTTL           time.Duration `env:"PROMPT_TTL" envDefault:"5m"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRedisAddress := cfg.RedisAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.SiphonCapacity <= 0:
		return fmt.Errorf("SIPHON_CAPACITY must be positive, got %v", c.SiphonCapacity)
	case c.SweepParallelism <= 0:
		return fmt.Errorf("SWEEP_PARALLELISM must be positive, got %d", c.SweepParallelism)
	case c.APISecret == "":
		return errors.New("API_SECRET must not be empty")
	}
	return nil
}
