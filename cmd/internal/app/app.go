// Package app wires the authd server runtime: config, logging, persistence,
// the session service and its HTTP routes.
package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"authd/cmd/identity"
	"authd/cmd/internal/auth/api"
	"authd/cmd/internal/auth/session"
	"authd/cmd/internal/db"
	"authd/cmd/security/password"
	"authd/cmd/security/token"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// userStore is what the runtime needs from identity persistence.
type userStore interface {
	FindByUsername(ctx context.Context, username string) (identity.User, error)
	CreateUser(ctx context.Context, in identity.CreateUserInput) (identity.User, error)
}

// App is the authd server runtime. It owns the DB pool and the HTTP server.
type App struct {
	cfg Config
	log Logger

	dbPool *pgxpool.Pool

	registry    *prometheus.Registry
	httpMetrics *httpMetrics

	sessions *session.Service
	auth     *api.Handler
}

// New constructs a fully wired App from cfg. Postgres mode connects (and
// optionally migrates) before returning; memory mode needs no external services.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	ctx := context.Background()

	a := &App{cfg: cfg, log: log}

	var sessMetrics *session.Metrics
	if cfg.MetricsEnabled {
		a.registry = newMetricsRegistry()
		m, err := newHTTPMetrics(a.registry)
		if err != nil {
			return nil, err
		}
		a.httpMetrics = m
		if sessMetrics, err = session.NewMetrics(a.registry); err != nil {
			return nil, err
		}
	}

	users, store, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	hasher, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	dummy, err := hasher.Hash(rand.Text())
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	access, refresh, err := token.NewPair(sessCfg.Token)
	if err != nil {
		return nil, err
	}

	a.sessions, err = session.NewService(sessCfg, store, users, hasher, access, refresh,
		session.WithMetrics(sessMetrics),
		session.WithDummyHash(dummy),
	)
	if err != nil {
		return nil, err
	}

	a.auth, err = api.NewHandler(log, api.LoadConfigFromEnv(), a.sessions, access, refresh)
	if err != nil {
		return nil, err
	}

	if err := bootstrapUser(ctx, log, cfg, users, hasher); err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// openStores picks Postgres or in-memory persistence per cfg.Store.
func (a *App) openStores(ctx context.Context) (userStore, session.Store, error) {
	if a.cfg.Store != StorePostgres {
		a.log.Info("db.disabled.memory_store")
		return identity.NewMemoryStore(), session.NewMemoryStore(), nil
	}

	if a.cfg.AutoMigrate {
		if err := db.MigrateUp(a.cfg.DatabaseURL); err != nil {
			return nil, nil, err
		}
		a.log.Info("db.migrate.ok")
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return nil, nil, err
	}
	a.dbPool = pool

	users, err := identity.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	sessions, err := session.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	a.log.Info("db.enabled.postgres_store")
	return users, sessions, nil
}

// bootstrapUser provisions the configured user once. An existing user is left untouched.
func bootstrapUser(ctx context.Context, log Logger, cfg Config, users userStore, hasher password.Hasher) error {
	if cfg.BootstrapUsername == "" || cfg.BootstrapPassword == "" {
		return nil
	}

	hash, err := hasher.Hash(cfg.BootstrapPassword)
	if err != nil {
		return fmt.Errorf("bootstrap user: %w", err)
	}
	u, err := users.CreateUser(ctx, identity.CreateUserInput{
		Username:     cfg.BootstrapUsername,
		RoleName:     cfg.BootstrapRole,
		PasswordHash: hash,
	})
	switch {
	case identity.IsConflict(err):
		log.Info("bootstrap.user.exists", "username", identity.NormalizeUsername(cfg.BootstrapUsername))
		return nil
	case err != nil:
		return fmt.Errorf("bootstrap user: %w", err)
	}
	log.Info("bootstrap.user.created", "user_id", u.ID, "role", u.RoleName)
	return nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.registry, a.auth)

	var h http.Handler = mux
	h = a.httpMetrics.instrument(h)
	h = WithCORS(h, a.cfg, a.log)
	h = WithSecurityHeaders(h)
	return WithRequestLogging(h, a.log)
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "store", a.cfg.Store)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.close()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
	}
	a.close()

	a.log.Info("server.stopped")
	return err
}

func (a *App) close() {
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
