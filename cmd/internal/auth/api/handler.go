package api

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"authd/cmd/internal/auth/session"
	"authd/cmd/security/token"
)

// Handler wires HTTP auth endpoints to the session service.
type Handler struct {
	log       *slog.Logger
	cfg       Config
	sessions  *session.Service
	transport *Transport
}

// HandlerOption configures optional Handler behavior.
type HandlerOption func(*Handler)

// WithClock overrides the time source used for cookie lifetimes.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.transport.now = now
		}
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, sessions *session.Service, access, refresh *token.Codec, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if sessions == nil {
		return nil, errors.New("auth: nil session service")
	}
	if access == nil || refresh == nil {
		return nil, errors.New("auth: nil token codec")
	}

	h := &Handler{
		log:       log,
		cfg:       cfg,
		sessions:  sessions,
		transport: NewTransport(cfg, log, access, refresh),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Transport returns the transport used by the handler, for guarding other routes.
func (h *Handler) Transport() *Transport { return h.transport }

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.Handle("/auth/me", allowMethod(http.MethodGet, h.transport.RequireAccess(http.HandlerFunc(h.handleMe))))
}

func allowMethod(method string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ---- handlers ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if !readJSON(w, r, h.cfg.MaxBodyBytes, &req) {
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}
	if !h.sessions.ValidFingerprint(req.Fingerprint) {
		writeError(w, http.StatusBadRequest, "invalid_fingerprint", "fingerprint is required")
		return
	}

	issued, err := h.sessions.Login(r.Context(), session.LoginInput{
		Username:    req.Username,
		Password:    req.Password,
		Fingerprint: req.Fingerprint,
	})
	if err != nil {
		writeMappedError(h.log, w, "auth.login", err)
		return
	}

	h.log.Info("auth.login.ok", "session_id", issued.SessionID, "ip", clientIP(r, h.cfg.TrustProxy))

	h.transport.SetRefreshCookie(w, issued.RefreshToken, issued.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
		UserRoleName: issued.RoleName,
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		w.Header().Set("Allow", http.MethodPatch)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, raw, _, err := h.transport.Authenticate(r, token.TypeRefresh, false)
	if err != nil {
		writeMappedError(h.log, w, "auth.refresh", err)
		return
	}

	fingerprint, ok := h.decodeFingerprint(w, r)
	if !ok {
		return
	}

	issued, err := h.sessions.Refresh(r.Context(), session.RefreshInput{
		Claims:      claims,
		RawRefresh:  raw,
		Fingerprint: fingerprint,
	})
	if err != nil {
		if sessionGone(err) {
			h.transport.UnsetRefreshCookie(w)
		}
		writeMappedError(h.log, w, "auth.refresh", err)
		return
	}

	h.transport.SetRefreshCookie(w, issued.RefreshToken, issued.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, raw, _, err := h.transport.Authenticate(r, token.TypeRefresh, false)
	if err != nil {
		writeMappedError(h.log, w, "auth.logout", err)
		return
	}

	fingerprint, ok := h.decodeFingerprint(w, r)
	if !ok {
		return
	}

	row, err := h.sessions.Logout(r.Context(), session.LogoutInput{
		Claims:      claims,
		RawRefresh:  raw,
		Fingerprint: fingerprint,
	})
	if err != nil {
		writeMappedError(h.log, w, "auth.logout", err)
		return
	}

	h.log.Info("auth.logout.ok", "session_id", row.ID)
	h.transport.UnsetRefreshCookie(w)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Not authorized")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		UserID:    claims.SubjectString(session.SubjectUserID),
		RoleName:  claims.SubjectString(session.SubjectRoleName),
		ExpiresAt: claims.ExpiresAt,
	})
}

// ---- helpers ----

func (h *Handler) decodeFingerprint(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req fingerprintRequest
	if !readJSON(w, r, h.cfg.MaxBodyBytes, &req) {
		return "", false
	}
	if !h.sessions.ValidFingerprint(req.Fingerprint) {
		writeError(w, http.StatusBadRequest, "invalid_fingerprint", "fingerprint is required")
		return "", false
	}
	return req.Fingerprint, true
}

// sessionGone reports errors after which the client's refresh cookie is useless.
func sessionGone(err error) bool {
	return errors.Is(err, session.ErrUnauthorized) || errors.Is(err, session.ErrTokenExpired)
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
