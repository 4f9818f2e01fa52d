package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"authd/cmd/internal/auth/session"
	"authd/cmd/security/token"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	driver := session.OpError{Op: "session.Create", Kind: session.ErrDriver, Err: errors.New("dial tcp 10.0.0.7:5432: secret detail")}

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"credentials", session.ErrInvalidCredentials, http.StatusNotAcceptable, "invalid_credentials"},
		{"session expired", session.ErrTokenExpired, StatusSessionExpired, "token_expired"},
		{"codec expired", token.ErrExpired, StatusSessionExpired, "token_expired"},
		{"unauthorized", session.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"malformed", fmt.Errorf("%w: signature", token.ErrMalformed), http.StatusUnauthorized, "invalid_token"},
		{"invalid token", session.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
		{"csrf", token.ErrCSRF, http.StatusForbidden, "csrf_invalid"},
		{"conflict", session.ConflictError{Op: "session.Create"}, http.StatusConflict, "conflict"},
		{"not found", session.OpError{Op: "session.Update", Kind: session.ErrNotFound}, http.StatusNotFound, "not_found"},
		{"driver", driver, http.StatusInternalServerError, "driver_error"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "server_error"},
	}
	for _, tc := range tests {
		got := mapError(tc.err)
		if got.Status != tc.status || got.Code != tc.code {
			t.Fatalf("%s: got %d %s, want %d %s", tc.name, got.Status, got.Code, tc.status, tc.code)
		}
		if got.Message == "" {
			t.Fatalf("%s: empty message", tc.name)
		}
	}

	if m := mapError(driver); strings.Contains(m.Message, "10.0.0.7") {
		t.Fatalf("internal detail leaked: %q", m.Message)
	}
}
