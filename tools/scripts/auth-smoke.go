// Package main provides a CI-friendly smoke test for a running authd server.
//
// It validates:
//   - login returns an access/refresh pair and sets the refresh cookie
//   - /auth/me accepts the access token
//   - refresh rotates the refresh token
//   - the superseded refresh token is rejected
//   - logout succeeds once and then answers 401
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type smokeClient struct {
	base    string
	http    *http.Client
	timeout time.Duration
	verbose bool
}

func main() {
	var (
		baseURL     = flag.String("url", "http://127.0.0.1:8080", "authd base URL")
		username    = flag.String("username", "admin", "username")
		pass        = flag.String("password", os.Getenv("AUTHD_SMOKE_PASSWORD"), "password (default: AUTHD_SMOKE_PASSWORD)")
		fingerprint = flag.String("fingerprint", "smoke-device", "device fingerprint")
		timeout     = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose     = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if u, err := url.Parse(*baseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		fatalf("invalid -url %q", *baseURL)
	}
	if *pass == "" {
		fatalf("-password or AUTHD_SMOKE_PASSWORD is required")
	}

	c := &smokeClient{base: *baseURL, http: &http.Client{}, timeout: *timeout, verbose: *verbose}

	var login tokenPair
	status, res := c.do(http.MethodPost, "/auth/login", "", map[string]string{
		"username":    *username,
		"password":    *pass,
		"fingerprint": *fingerprint,
	}, &login)
	expectStatus("login", status, http.StatusOK)
	if login.AccessToken == "" || login.RefreshToken == "" {
		fatalf("login: missing tokens")
	}
	if !hasCookie(res, "refresh_token") {
		fatalf("login: refresh cookie not set")
	}

	status, _ = c.do(http.MethodGet, "/auth/me", login.AccessToken, nil, nil)
	expectStatus("me", status, http.StatusOK)

	var rotated tokenPair
	status, _ = c.do(http.MethodPatch, "/auth/refresh", login.RefreshToken, map[string]string{"fingerprint": *fingerprint}, &rotated)
	expectStatus("refresh", status, http.StatusOK)
	if rotated.RefreshToken == "" || rotated.RefreshToken == login.RefreshToken {
		fatalf("refresh: token was not rotated")
	}

	status, _ = c.do(http.MethodPatch, "/auth/refresh", login.RefreshToken, map[string]string{"fingerprint": *fingerprint}, nil)
	expectStatus("refresh with superseded token", status, http.StatusUnauthorized)

	status, _ = c.do(http.MethodPost, "/auth/logout", rotated.RefreshToken, map[string]string{"fingerprint": *fingerprint}, nil)
	expectStatus("logout", status, http.StatusOK)

	status, _ = c.do(http.MethodPost, "/auth/logout", rotated.RefreshToken, map[string]string{"fingerprint": *fingerprint}, nil)
	expectStatus("second logout", status, http.StatusUnauthorized)

	fmt.Println("OK: auth smoke passed")
}

func (c *smokeClient) do(method, path, bearer string, body any, out any) (int, *http.Response) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			fatalf("%s %s: marshal: %v", method, path, err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := c.http.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		fatalf("%s %s: read body: %v", method, path, err)
	}
	if c.verbose {
		fmt.Printf("%s %s -> %d %s\n", method, path, res.StatusCode, bytes.TrimSpace(raw))
	}
	if out != nil && res.StatusCode < 300 {
		if err := json.Unmarshal(raw, out); err != nil {
			fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return res.StatusCode, res
}

func hasCookie(res *http.Response, name string) bool {
	for _, c := range res.Cookies() {
		if c.Name == name && c.Value != "" {
			return true
		}
	}
	return false
}

func expectStatus(step string, got, want int) {
	if got != want {
		fatalf("%s: status=%d want=%d", step, got, want)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
