package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreBolt     = "bolt"
	StorePostgres = "postgres"
)

// Config holds service configuration.
type Config struct {
	ServerAddr string `env:"SERVER_ADDR" envDefault:"0.0.0.0:8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	Store    Store
	Postgres Postgres
	Session  Session
	Deadlock Deadlock
	Collab   Collaborators
	Delivery Delivery

	// LedgerSigningKey is hex encoded; empty disables chain signatures.
	LedgerSigningKey string `env:"LEDGER_SIGNING_KEY"`
}

type Store struct {
	Backend       string `env:"STORE_BACKEND" envDefault:"memory"`
	BoltPath      string `env:"BOLT_PATH" envDefault:"negotiations.db"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"internal/migrations"`
}

// Postgres is only read when STORE_BACKEND=postgres. DATABASE_URL wins over
// the individual POSTGRES_* settings.
type Postgres struct {
	DatabaseURL string `env:"DATABASE_URL"`
	User        string `env:"POSTGRES_USER" envDefault:"mandi"`
	Password    string `env:"POSTGRES_PASSWORD" envDefault:"mandi_pass"`
	DB          string `env:"POSTGRES_DB" envDefault:"negotiation_hub"`
	Host        string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port        string `env:"POSTGRES_PORT" envDefault:"5432"`
	SSLMode     string `env:"DATABASE_SSLMODE" envDefault:"disable"`
}

// DSN returns the connection string.
func (p Postgres) DSN() string {
	if p.DatabaseURL != "" {
		return p.DatabaseURL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     p.Host + ":" + p.Port,
		Path:     "/" + p.DB,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

type Session struct {
	Window        time.Duration `env:"SESSION_WINDOW" envDefault:"24h"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	ArchiveTTL    time.Duration `env:"ARCHIVE_TTL" envDefault:"1h"`
	OfferGuard    string        `env:"OFFER_GUARD"`
}

type Deadlock struct {
	Pairs          int     `env:"DEADLOCK_PAIRS" envDefault:"3"`
	MinImprovement float64 `env:"DEADLOCK_MIN_IMPROVEMENT" envDefault:"0.02"`
	GapFloor       float64 `env:"DEADLOCK_GAP_FLOOR" envDefault:"0.05"`
}

type Collaborators struct {
	TranslationURL     string            `env:"TRANSLATION_URL"`
	TranslationTimeout time.Duration     `env:"TRANSLATION_TIMEOUT" envDefault:"2s"`
	TranslationTTL     time.Duration     `env:"TRANSLATION_CACHE_TTL" envDefault:"24h"`
	RedisURL           string            `env:"REDIS_URL"`
	PriceBandURL       string            `env:"PRICE_BAND_URL"`
	PriceBandTimeout   time.Duration     `env:"PRICE_BAND_TIMEOUT" envDefault:"5s"`
	PriceBandTTL       time.Duration     `env:"PRICE_CACHE_TTL" envDefault:"15m"`
	PriceBands         map[string]string `env:"PRICE_BANDS"`
	PhrasingTimeout    time.Duration     `env:"PHRASING_TIMEOUT" envDefault:"2s"`
}

type Delivery struct {
	Workers        int           `env:"DELIVERY_WORKERS" envDefault:"4"`
	MaxRetries     int           `env:"DELIVERY_MAX_RETRIES" envDefault:"3"`
	InitialBackoff time.Duration `env:"DELIVERY_INITIAL_BACKOFF" envDefault:"200ms"`
	MaxBackoff     time.Duration `env:"DELIVERY_MAX_BACKOFF" envDefault:"5s"`
}

// Load reads configuration from the environment, after an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("env.Parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreMemory, StoreBolt, StorePostgres:
	default:
		return fmt.Errorf("STORE_BACKEND must be memory, bolt or postgres, got %q", c.Store.Backend)
	}
	if c.Session.Window <= 0 {
		return fmt.Errorf("SESSION_WINDOW must be positive")
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.Deadlock.Pairs < 2 {
		return fmt.Errorf("DEADLOCK_PAIRS must be at least 2")
	}
	if c.Deadlock.MinImprovement < 0 || c.Deadlock.GapFloor < 0 {
		return fmt.Errorf("DEADLOCK_MIN_IMPROVEMENT and DEADLOCK_GAP_FLOOR must not be negative")
	}
	if c.Delivery.MaxRetries < 0 {
		return fmt.Errorf("DELIVERY_MAX_RETRIES must not be negative")
	}
	if _, err := c.SigningKey(); err != nil {
		return err
	}
	return nil
}

// SigningKey decodes LEDGER_SIGNING_KEY.
func (c *Config) SigningKey() ([]byte, error) {
	if c.LedgerSigningKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.LedgerSigningKey)
	if err != nil {
		return nil, fmt.Errorf("LEDGER_SIGNING_KEY must be hex: %w", err)
	}
	return key, nil
}
