package api

import (
	"errors"
	"log/slog"
	"net/http"

	"authd/cmd/internal/auth/session"
	"authd/cmd/security/token"
)

// StatusSessionExpired is the non-standard status returned for expired sessions.
const StatusSessionExpired = 419

type mappedError struct {
	Status  int
	Code    string
	Message string
}

// mapError translates domain and codec failures into a stable HTTP contract.
// Internal error text is never part of the result.
func mapError(err error) mappedError {
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		return mappedError{http.StatusNotAcceptable, "invalid_credentials", "Incorrect username or password"}
	case errors.Is(err, session.ErrTokenExpired), errors.Is(err, token.ErrExpired):
		return mappedError{StatusSessionExpired, "token_expired", "Session timed out. Try to auth again"}
	case errors.Is(err, session.ErrUnauthorized):
		return mappedError{http.StatusUnauthorized, "unauthorized", "Not authorized"}
	case errors.Is(err, token.ErrCSRF):
		return mappedError{http.StatusForbidden, "csrf_invalid", "Missing or invalid csrf token"}
	case errors.Is(err, token.ErrMalformed), errors.Is(err, session.ErrInvalidToken):
		return mappedError{http.StatusUnauthorized, "invalid_token", "Invalid token"}
	case errors.Is(err, session.ErrInvalidInput):
		return mappedError{http.StatusBadRequest, "invalid_request", "Invalid request"}
	case errors.Is(err, session.ErrConflict):
		return mappedError{http.StatusConflict, "conflict", "Not unique"}
	case errors.Is(err, session.ErrNotFound):
		return mappedError{http.StatusNotFound, "not_found", "Empty result"}
	case errors.Is(err, session.ErrDriver):
		return mappedError{http.StatusInternalServerError, "driver_error", "Internal driver error"}
	default:
		return mappedError{http.StatusInternalServerError, "server_error", "internal error"}
	}
}

// writeMappedError logs err under event and writes its mapped response.
func writeMappedError(log *slog.Logger, w http.ResponseWriter, event string, err error) mappedError {
	m := mapError(err)
	if m.Status >= http.StatusInternalServerError {
		log.Error(event+".fail", "err", err)
	} else {
		log.Info(event+".reject", "code", m.Code)
	}
	writeError(w, m.Status, m.Code, m.Message)
	return m
}
