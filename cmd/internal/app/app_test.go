package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "explicit localhost", in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v4", in: "0.0.0.0:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "empty host", in: ":8080", want: "http://127.0.0.1:8080"},
		{name: "ipv6 host", in: "[2001:db8::1]:9090", want: "http://[2001:db8::1]:9090"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := runtimeBaseURL(tc.in)
			if got != tc.want {
				t.Fatalf("runtimeBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func setAppEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AUTHD_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("AUTHD_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("AUTHD_ARGON2_ITERATIONS", "1")
	t.Setenv("AUTHD_ARGON2_PARALLELISM", "1")
}

func newMemoryApp(t *testing.T) *App {
	t.Helper()
	setAppEnv(t)

	cfg := Config{
		HTTPAddr:          "127.0.0.1:0",
		Store:             StoreMemory,
		BootstrapUsername: "Admin",
		BootstrapPassword: "correct horse battery",
		BootstrapRole:     "admin",
		MetricsEnabled:    true,
	}
	a, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestApp_MemoryModeLoginAndMe(t *testing.T) {
	a := newMemoryApp(t)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	body := `{"username":"admin","password":"correct horse battery","fingerprint":"device-1"}`
	res, err := http.Post(srv.URL+"/auth/login", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(res.Body)
		t.Fatalf("login status=%d body=%s", res.StatusCode, raw)
	}
	if res.Header.Get(requestIDHeader) == "" {
		t.Fatalf("missing request id header")
	}

	var login struct {
		AccessToken  string `json:"access_token"`
		UserRoleName string `json:"user_role_name"`
	}
	if err := json.NewDecoder(res.Body).Decode(&login); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if login.AccessToken == "" || login.UserRoleName != "admin" {
		t.Fatalf("unexpected login response: %+v", login)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	me, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	defer me.Body.Close()
	if me.StatusCode != http.StatusOK {
		t.Fatalf("me status=%d", me.StatusCode)
	}

	mres, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer mres.Body.Close()
	raw, _ := io.ReadAll(mres.Body)
	for _, want := range []string{"authd_http_requests_total", "authd_session_outcomes_total"} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
}

func TestApp_HealthAndReady(t *testing.T) {
	a := newMemoryApp(t)
	h := a.Handler()

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
			t.Fatalf("%s missing security headers", path)
		}
	}
}

func TestApp_ReadyRequiresDB(t *testing.T) {
	setAppEnv(t)

	a, err := New(Config{Store: StoreMemory, ReadinessRequireDB: true}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want 503", rr.Code)
	}

	rr = httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("metrics disabled: status=%d want 404", rr.Code)
	}
}

func TestNew_MissingSecret(t *testing.T) {
	setAppEnv(t)
	t.Setenv("AUTHD_JWT_SECRET", "")

	if _, err := New(Config{Store: StoreMemory}, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatalf("expected error without a signing secret")
	}
}
