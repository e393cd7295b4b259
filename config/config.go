// Package config loads server settings from app.env and the environment.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPPort int `mapstructure:"HTTP_PORT"`

	DBDriver string `mapstructure:"DB_DRIVER"`
	DBDSN    string `mapstructure:"DB_DSN"`

	RedisAddr       string        `mapstructure:"REDIS_ADDR"`
	RedisPassword   string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB         int           `mapstructure:"REDIS_DB"`
	BalanceCacheTTL time.Duration `mapstructure:"BALANCE_CACHE_TTL"`

	JWTSecret   string `mapstructure:"JWT_SECRET"`
	CORSOrigins string `mapstructure:"CORS_ORIGINS"`

	SweepSchedule    string `mapstructure:"SWEEP_SCHEDULE"`
	SweepConcurrency int    `mapstructure:"SWEEP_CONCURRENCY"`

	WelcomeBonus    int64 `mapstructure:"WELCOME_BONUS"`
	EnableScenarios bool  `mapstructure:"ENABLE_SCENARIOS"`

	OTelEndpoint string `mapstructure:"OTEL_ENDPOINT"`
	LogLevel     string `mapstructure:"LOG_LEVEL"`
	LogDev       bool   `mapstructure:"LOG_DEV"`
}

var defaults = map[string]any{
	"HTTP_PORT":         8080,
	"DB_DRIVER":         "sqlite3",
	"DB_DSN":            "courses.db",
	"REDIS_ADDR":        "",
	"REDIS_PASSWORD":    "",
	"REDIS_DB":          0,
	"BALANCE_CACHE_TTL": "5m",
	"JWT_SECRET":        "",
	"CORS_ORIGINS":      "http://localhost:3000",
	"SWEEP_SCHEDULE":    "@every 1h",
	"SWEEP_CONCURRENCY": 4,
	"WELCOME_BONUS":     500,
	"ENABLE_SCENARIOS":  false,
	"OTEL_ENDPOINT":     "",
	"LOG_LEVEL":         "info",
	"LOG_DEV":           false,
}

// LoadConfig reads path/app.env if present. Environment variables always win
// and a missing file is not an error.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults also register the keys so Unmarshal sees env-only values.
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, err
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return errors.New("HTTP_PORT must be between 1 and 65535")
	}
	if c.DBDSN == "" {
		return errors.New("DB_DSN is required")
	}
	if c.SweepConcurrency < 1 {
		return errors.New("SWEEP_CONCURRENCY must be at least 1")
	}
	if c.WelcomeBonus < 0 {
		return errors.New("WELCOME_BONUS must not be negative")
	}
	return nil
}

// Origins splits CORS_ORIGINS on commas.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
