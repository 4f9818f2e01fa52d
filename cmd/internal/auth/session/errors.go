package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned when the username is unknown or the password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized is returned when a refresh token has no live session (unknown, rotated or logged out).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenExpired is returned when the stored session has expired or the fingerprint does not match.
	ErrTokenExpired = errors.New("session expired")

	// ErrInvalidToken is returned when the store reports a structurally wrong match for a token.
	ErrInvalidToken = errors.New("invalid token")

	// ErrConflict is returned by stores on unique-constraint violations.
	ErrConflict = errors.New("session conflict")

	// ErrNotFound is returned by stores when no row matches.
	ErrNotFound = errors.New("session not found")

	// ErrDriver is the kind for unexpected store failures.
	ErrDriver = errors.New("store driver error")

	// ErrInvalidInput is returned for missing fingerprints or subjects.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// OpError wraps an underlying failure with the store operation and an error kind.
// errors.Is matches both Kind and the wrapped Err.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ConflictError reports which unique constraint rejected a write.
type ConflictError struct {
	Op         string
	Constraint string
}

func (e ConflictError) Error() string {
	if e.Constraint == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrConflict)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrConflict, e.Constraint)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

func driverError(op string, err error) error {
	return OpError{Op: op, Kind: ErrDriver, Err: err}
}
