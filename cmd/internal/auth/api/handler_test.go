package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"authd/cmd/identity"
	"authd/cmd/internal/auth/session"
	"authd/cmd/security/password"
	"authd/cmd/security/token"
)

const (
	testUser     = "alice"
	testPassword = "correct horse battery"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	mux     *http.ServeMux
	handler *Handler
	access  *token.Codec
	refresh *token.Codec
	store   *session.MemoryStore
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	now := func() time.Time { return testNow }

	tcfg := token.DefaultConfig()
	tcfg.Secret = []byte("0123456789abcdef0123456789abcdef")
	access, refresh, err := token.NewPair(tcfg, token.WithClock(now))
	if err != nil {
		t.Fatalf("NewPair: %v", err)
	}

	hasher := password.DefaultHasher()
	hasher.Params.MemoryKiB = 8 * 1024
	hasher.Params.Iterations = 1
	hasher.Params.Parallelism = 1
	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	users := identity.NewMemoryStore()
	if _, err := users.CreateUser(context.Background(), identity.CreateUserInput{
		Username:     testUser,
		RoleName:     "admin",
		PasswordHash: hash,
	}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	store := session.NewMemoryStore()
	scfg := session.DefaultConfig()
	scfg.Token = tcfg
	svc, err := session.NewService(scfg, store, users, hasher, access, refresh, session.WithClock(now))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := NewHandler(log, cfg, svc, access, refresh, WithClock(now))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	return &testEnv{mux: mux, handler: h, access: access, refresh: refresh, store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) login(t *testing.T, fingerprint string) loginResponse {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/auth/login", loginRequest{
		Username:    testUser,
		Password:    testPassword,
		Fingerprint: fingerprint,
	}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("login: status=%d body=%s", rr.Code, rr.Body.String())
	}
	var out loginResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return out
}

func bearer(raw string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+raw) }
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var er errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	return er.Error.Code
}

func refreshCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLogin_IssuesPairAndCookie(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, DefaultConfig())
	rr := env.do(t, http.MethodPost, "/auth/login", loginRequest{
		Username:    testUser,
		Password:    testPassword,
		Fingerprint: "device-a",
	}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("Cache-Control=%q", got)
	}

	var out loginResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.AccessToken == "" || out.RefreshToken == "" || out.UserRoleName != "admin" {
		t.Fatalf("unexpected body: %+v", out)
	}

	c := refreshCookie(rr, "refresh_token")
	if c == nil {
		t.Fatalf("missing refresh cookie")
	}
	if c.Value != out.RefreshToken || !c.HttpOnly || !c.Secure {
		t.Fatalf("bad cookie: %+v", c)
	}
	if want := int((31 * 24 * time.Hour).Seconds()); c.MaxAge != want {
		t.Fatalf("MaxAge=%d want %d", c.MaxAge, want)
	}
}

func TestLogin_Rejections(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, DefaultConfig())

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"wrong password", loginRequest{Username: testUser, Password: "nope-nope", Fingerprint: "d"}, http.StatusNotAcceptable, "invalid_credentials"},
		{"unknown user", loginRequest{Username: "bob", Password: testPassword, Fingerprint: "d"}, http.StatusNotAcceptable, "invalid_credentials"},
		{"missing fingerprint", loginRequest{Username: testUser, Password: testPassword}, http.StatusBadRequest, "invalid_fingerprint"},
		{"oversized fingerprint", loginRequest{Username: testUser, Password: testPassword, Fingerprint: strings.Repeat("f", 513)}, http.StatusBadRequest, "invalid_fingerprint"},
		{"missing password", loginRequest{Username: testUser, Fingerprint: "d"}, http.StatusBadRequest, "invalid_request"},
		{"unknown field", map[string]string{"username": testUser, "password": testPassword, "fingerprint": "d", "role": "root"}, http.StatusBadRequest, "invalid_json"},
	}
	for _, tc := range tests {
		rr := env.do(t, http.MethodPost, "/auth/login", tc.body, nil)
		if rr.Code != tc.status {
			t.Fatalf("%s: status=%d want %d body=%s", tc.name, rr.Code, tc.status, rr.Body.String())
		}
		if code := errorCode(t, rr); code != tc.code {
			t.Fatalf("%s: code=%q want %q", tc.name, code, tc.code)
		}
	}

	if rr := env.do(t, http.MethodGet, "/auth/login", nil, nil); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /auth/login: status=%d", rr.Code)
	}
}

func TestLogin_BodyTooLarge(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxBodyBytes = 64
	env := newTestEnv(t, cfg)

	rr := env.do(t, http.MethodPost, "/auth/login", loginRequest{
		Username:    testUser,
		Password:    testPassword,
		Fingerprint: strings.Repeat("f", 128),
	}, nil)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status=%d want 413 body=%s", rr.Code, rr.Body.String())
	}
	if code := errorCode(t, rr); code != "body_too_large" {
		t.Fatalf("code=%q", code)
	}
}

func TestRefreshAndLogoutFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, DefaultConfig())
	first := env.login(t, "device-a")
	body := fingerprintRequest{Fingerprint: "device-a"}

	rr := env.do(t, http.MethodPatch, "/auth/refresh", body, bearer(first.RefreshToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh: status=%d body=%s", rr.Code, rr.Body.String())
	}
	var rotated refreshResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &rotated); err != nil {
		t.Fatalf("decode refresh: %v", err)
	}
	if rotated.RefreshToken == "" || rotated.RefreshToken == first.RefreshToken {
		t.Fatalf("refresh token not rotated")
	}
	if c := refreshCookie(rr, "refresh_token"); c == nil || c.Value != rotated.RefreshToken {
		t.Fatalf("refresh cookie not updated: %+v", c)
	}

	// Old token is dead and its cookie gets cleared.
	rr = env.do(t, http.MethodPatch, "/auth/refresh", body, bearer(first.RefreshToken))
	if rr.Code != http.StatusUnauthorized || errorCode(t, rr) != "unauthorized" {
		t.Fatalf("reuse: status=%d body=%s", rr.Code, rr.Body.String())
	}
	if c := refreshCookie(rr, "refresh_token"); c == nil || c.MaxAge >= 0 {
		t.Fatalf("expected cookie unset on dead session: %+v", c)
	}

	// Access tokens are not accepted where refresh tokens are expected.
	rr = env.do(t, http.MethodPatch, "/auth/refresh", body, bearer(rotated.AccessToken))
	if rr.Code != http.StatusUnauthorized || errorCode(t, rr) != "invalid_token" {
		t.Fatalf("access as refresh: status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/auth/logout", body, bearer(rotated.RefreshToken))
	if rr.Code != http.StatusOK || rr.Body.Len() != 0 {
		t.Fatalf("logout: status=%d body=%q", rr.Code, rr.Body.String())
	}
	if c := refreshCookie(rr, "refresh_token"); c == nil || c.Value != "" || c.MaxAge >= 0 {
		t.Fatalf("logout should unset cookie: %+v", c)
	}
	if env.store.Len() != 0 {
		t.Fatalf("sessions=%d after logout", env.store.Len())
	}

	rr = env.do(t, http.MethodPost, "/auth/logout", body, bearer(rotated.RefreshToken))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("second logout: status=%d", rr.Code)
	}
}

func TestRefresh_FingerprintMismatch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, DefaultConfig())
	first := env.login(t, "device-a")

	rr := env.do(t, http.MethodPatch, "/auth/refresh", fingerprintRequest{Fingerprint: "device-b"}, bearer(first.RefreshToken))
	if rr.Code != StatusSessionExpired || errorCode(t, rr) != "token_expired" {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if env.store.Len() != 0 {
		t.Fatalf("session should be deleted")
	}
}

func TestRefresh_CredentialRules(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, DefaultConfig())
	first := env.login(t, "device-a")
	body := fingerprintRequest{Fingerprint: "device-a"}

	rr := env.do(t, http.MethodPatch, "/auth/refresh", body, nil)
	if rr.Code != http.StatusUnauthorized || errorCode(t, rr) != "unauthorized" {
		t.Fatalf("missing credential: status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPatch, "/auth/refresh", body, bearer(first.RefreshToken+"x"))
	if rr.Code != http.StatusUnauthorized || errorCode(t, rr) != "invalid_token" {
		t.Fatalf("tampered: status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/auth/refresh", body, bearer(first.RefreshToken))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /auth/refresh: status=%d", rr.Code)
	}

	// Cookie-only works too.
	rr = env.do(t, http.MethodPatch, "/auth/refresh", body, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "refresh_token", Value: first.RefreshToken})
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("cookie refresh: status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestMe(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, DefaultConfig())
	first := env.login(t, "device-a")

	rr := env.do(t, http.MethodGet, "/auth/me", nil, bearer(first.AccessToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var me meResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if me.RoleName != "admin" || me.UserID == "" {
		t.Fatalf("unexpected me: %+v", me)
	}
	if want := testNow.Add(15 * 24 * time.Hour); !me.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt=%v want %v", me.ExpiresAt, want)
	}

	if rr := env.do(t, http.MethodGet, "/auth/me", nil, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: status=%d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/auth/me", nil, bearer(first.RefreshToken)); rr.Code != http.StatusUnauthorized {
		t.Fatalf("refresh as access: status=%d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/auth/me", nil, bearer(first.AccessToken)); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE: status=%d", rr.Code)
	}
}
