package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port        int    `env:"PORT" default:"8080"`
	StoreDriver string `env:"STORE_DRIVER" default:"sqlite"`
	Dsn         string `env:"DSN"`
	SQLitePath  string `env:"SQLITE_PATH" default:"voteledger.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" default:"true"`
	RedisURL    string `env:"REDIS_URL"`

	JwtSecret  string `env:"JWT_SECRET"`
	JwtExpires string `env:"JWT_EXPIRES" default:"24h"`

	DailyShareCap  int           `env:"DAILY_SHARE_CAP" default:"5"`
	LedgerTimezone string        `env:"LEDGER_TIMEZONE" default:"Local"`
	UnlockTTL      time.Duration `env:"UNLOCK_TTL" default:"15m"`

	ReconcileAttempts int           `env:"RECONCILE_ATTEMPTS" default:"5"`
	ReconcileBackoff  time.Duration `env:"RECONCILE_BACKOFF" default:"50ms"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" default:"1m"`
	ReconcileBatch    int           `env:"RECONCILE_BATCH" default:"100"`

	NotifyWebhookURL string        `env:"NOTIFY_WEBHOOK_URL"`
	NotifyRPS        float64       `env:"NOTIFY_RPS" default:"10"`
	NotifyTimeout    time.Duration `env:"NOTIFY_TIMEOUT" default:"5s"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"console"`
}

// New reads .env if present, then the environment, and fills anything still
// unset from the default tags.
func New() *Config {
	if loadErr := godotenv.Load(".env"); loadErr != nil {
		log.Debug().Err(loadErr).Msg("[Env]: no .env file loaded")
	}

	cfg, err := Parse()
	if err != nil {
		log.Error().Err(err).Msg("[Env]: failed to parse environment variables")
	}
	return cfg
}

// Parse builds a Config from the process environment alone.
func Parse() (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return &cfg, fmt.Errorf("applying defaults: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return &cfg, err
	}
	return &cfg, nil
}

// Location resolves LEDGER_TIMEZONE. Unknown zones fall back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.LedgerTimezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", c.LedgerTimezone).Msg("unknown ledger timezone, using UTC")
		return time.UTC
	}
	return loc
}

// JwtTTL parses JWT_EXPIRES.
func (c *Config) JwtTTL() (time.Duration, error) {
	return time.ParseDuration(c.JwtExpires)
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.Dsn == "" {
			return fmt.Errorf("DSN is required for the postgres store")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.JwtSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.DailyShareCap < 0 {
		return fmt.Errorf("DAILY_SHARE_CAP must not be negative")
	}
	if _, err := c.JwtTTL(); err != nil {
		return fmt.Errorf("JWT_EXPIRES: %w", err)
	}
	return nil
}
