package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"authd/cmd/internal/config"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(config.New(""))
	if cfg.HTTPAddr != "0.0.0.0:8080" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Store != StoreMemory {
		t.Fatalf("store=%q want memory without a database url", cfg.Store)
	}
	if !cfg.MetricsEnabled || !cfg.CORSAllowCredentials || cfg.BootstrapRole != "admin" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "test.env")
	body := "AUTHD_DATABASE_URL=postgres://u:p@localhost/authd\n" +
		"AUTHD_HTTP_READ_TIMEOUT=3s\n" +
		"AUTHD_CORS_ALLOWED_ORIGINS=https://a.example,https://b.example\n" +
		"AUTHD_LOG_FORMAT=PRETTY\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}

	cfg := loadConfig(config.New(path))
	if cfg.Store != StorePostgres {
		t.Fatalf("store=%q want postgres when a database url is set", cfg.Store)
	}
	if cfg.ReadTimeout != 3*time.Second {
		t.Fatalf("read timeout=%v", cfg.ReadTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("origins=%v", cfg.CORSAllowedOrigins)
	}
	if cfg.LogFormat != "pretty" {
		t.Fatalf("log format=%q", cfg.LogFormat)
	}
}

func TestLoadConfig_ExplicitStoreWins(t *testing.T) {
	t.Setenv("AUTHD_STORE", "Memory")
	t.Setenv("AUTHD_DATABASE_URL", "postgres://localhost/authd")

	cfg := loadConfig(config.New(""))
	if cfg.Store != StoreMemory {
		t.Fatalf("store=%q want memory", cfg.Store)
	}
}
