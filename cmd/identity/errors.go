package identity

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when no user matches.
	ErrNotFound = errors.New("user not found")
	// ErrConflict is returned when a unique field is already taken.
	ErrConflict = errors.New("user conflict")
	// ErrInvalidInput is returned for empty or oversized fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDriver wraps unexpected database failures.
	ErrDriver = errors.New("user store driver error")
)

// Error carries the failing operation, a sentinel Kind and optional detail.
// Detail is human-readable and never carries secrets.
type Error struct {
	Op     string
	Kind   error
	Field  string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Field != "" {
		b.WriteString(" (")
		b.WriteString(e.Field)
		b.WriteString(")")
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsConflict reports whether err is a uniqueness violation.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// ConflictField returns the field that caused a conflict, or "".
func ConflictField(err error) string {
	var e *Error
	if errors.As(err, &e) && errors.Is(e.Kind, ErrConflict) {
		return e.Field
	}
	return ""
}
