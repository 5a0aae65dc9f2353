package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g. COMPASS_API_URL.
const Prefix = "COMPASS"

// Config holds all environment-driven settings.
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	APIURL          string        `envconfig:"API_URL" default:"http://localhost:5000/api"`
	HTTPTimeout     time.Duration `envconfig:"HTTP_TIMEOUT" default:"0s"`
	RetryMaxElapsed time.Duration `envconfig:"RETRY_MAX_ELAPSED" default:"10s"`
	UploadTimeout   time.Duration `envconfig:"UPLOAD_TIMEOUT" default:"30s"`

	StoreBackend  string `envconfig:"STORE_BACKEND" default:"sqlite"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"./compass.db"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
	AlertRules string `envconfig:"ALERT_RULES"`
}

// Load reads an optional .env file and then the COMPASS_* environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the rest of the program cannot work with.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("config: unknown store backend %q", c.StoreBackend)
	}
	if c.APIURL == "" {
		return fmt.Errorf("config: API_URL is empty")
	}
	if c.UploadTimeout <= 0 {
		return fmt.Errorf("config: UPLOAD_TIMEOUT must be positive")
	}
	return nil
}
