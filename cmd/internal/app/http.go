package app

import (
	"encoding/json"
	"net/http"
	"time"

	"authd/cmd/internal/auth/api"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

type probeResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Reason string `json:"reason,omitempty"`
}

func writeProbe(w http.ResponseWriter, status int, body probeResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// registerHTTP mounts probes, metrics and the auth routes on mux.
func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	cfg Config,
	dbPool *pgxpool.Pool,
	registry *prometheus.Registry,
	auth *api.Handler,
) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, http.StatusOK, probeResponse{Status: "ok", Store: cfg.Store})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case dbPool == nil && cfg.ReadinessRequireDB:
			writeProbe(w, http.StatusServiceUnavailable, probeResponse{Status: "not_ready", Store: cfg.Store, Reason: "db not configured"})
			return
		case dbPool != nil:
			if err := PingDB(r.Context(), dbPool, 2*time.Second); err != nil {
				log.Warn("readyz.db.not_ready", "err", err)
				writeProbe(w, http.StatusServiceUnavailable, probeResponse{Status: "not_ready", Store: cfg.Store, Reason: "db not ready"})
				return
			}
		}
		writeProbe(w, http.StatusOK, probeResponse{Status: "ready", Store: cfg.Store})
	})

	if registry != nil {
		mux.Handle("GET /metrics", metricsHandler(registry))
	}

	if auth != nil {
		auth.Register(mux)
	}
}
