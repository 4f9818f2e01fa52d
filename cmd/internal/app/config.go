package app

import (
	"strings"
	"time"

	"authd/cmd/internal/config"
)

// Store modes.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config contains all runtime configuration loaded from the environment.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Store selects persistence. Empty means postgres when DatabaseURL is set, memory otherwise.
	Store       string
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	AutoMigrate bool

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// Bootstrap user for the in-memory mode.
	BootstrapUsername string
	BootstrapPassword string
	BootstrapRole     string

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	MetricsEnabled bool
}

// LoadConfig loads Config from the environment (and .env) with defaults.
func LoadConfig() Config {
	return loadConfig(config.Default())
}

func loadConfig(src *config.Source) Config {
	cfg := Config{
		HTTPAddr:  src.String("AUTHD_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  src.String("AUTHD_LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(src.String("AUTHD_LOG_FORMAT", "json")),

		ReadHeaderTimeout: src.Duration("AUTHD_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       src.Duration("AUTHD_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      src.Duration("AUTHD_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       src.Duration("AUTHD_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: src.Int("AUTHD_HTTP_MAX_HEADER_BYTES", 1<<20),

		Store:       strings.ToLower(src.String("AUTHD_STORE", "")),
		DatabaseURL: src.String("AUTHD_DATABASE_URL", ""),
		DBMaxConns:  src.Int32("AUTHD_DB_MAX_CONNS", 10),
		DBMinConns:  src.Int32("AUTHD_DB_MIN_CONNS", 0),
		AutoMigrate: src.Bool("AUTHD_AUTO_MIGRATE", false),

		ReadinessRequireDB: src.Bool("AUTHD_READINESS_REQUIRE_DB", false),

		BootstrapUsername: src.String("AUTHD_BOOTSTRAP_USERNAME", ""),
		BootstrapPassword: src.String("AUTHD_BOOTSTRAP_PASSWORD", ""),
		BootstrapRole:     src.String("AUTHD_BOOTSTRAP_ROLE", "admin"),

		CORSAllowedOrigins:   src.List("AUTHD_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: src.Bool("AUTHD_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    src.Int("AUTHD_CORS_MAX_AGE_SECONDS", 600),

		MetricsEnabled: src.Bool("AUTHD_METRICS_ENABLED", true),
	}

	if cfg.Store == "" {
		cfg.Store = StoreMemory
		if cfg.DatabaseURL != "" {
			cfg.Store = StorePostgres
		}
	}
	return cfg
}
