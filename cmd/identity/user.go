// Package identity owns user records: lookup by username for login and
// provisioning of new users with an Argon2id password hash.
package identity

import (
	"crypto/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

const (
	maxUsernameLen = 64
	maxRoleLen     = 64

	// DefaultRole is assigned when CreateUserInput.RoleName is empty.
	DefaultRole = "user"
)

// User is the security principal that logs in.
type User struct {
	ID           string
	Username     string
	RoleName     string
	PasswordHash string
	CreatedAt    time.Time
}

// CreateUserInput describes a new user. PasswordHash must already be encoded.
type CreateUserInput struct {
	Username     string
	RoleName     string
	PasswordHash string
	Now          time.Time
}

// NormalizeUsername is the canonical form used for lookups and uniqueness:
// trimmed and lowercased.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalize validates in and returns the canonical values.
func (in CreateUserInput) normalize(op string) (CreateUserInput, error) {
	out := in
	out.Username = NormalizeUsername(in.Username)
	out.RoleName = strings.TrimSpace(in.RoleName)
	if out.RoleName == "" {
		out.RoleName = DefaultRole
	}
	if out.Now.IsZero() {
		out.Now = time.Now().UTC()
	}

	switch {
	case out.Username == "":
		return CreateUserInput{}, &Error{Op: op, Kind: ErrInvalidInput, Field: "username", Detail: "required"}
	case utf8.RuneCountInString(out.Username) > maxUsernameLen:
		return CreateUserInput{}, &Error{Op: op, Kind: ErrInvalidInput, Field: "username", Detail: "too long"}
	case utf8.RuneCountInString(out.RoleName) > maxRoleLen:
		return CreateUserInput{}, &Error{Op: op, Kind: ErrInvalidInput, Field: "role_name", Detail: "too long"}
	case strings.TrimSpace(out.PasswordHash) == "":
		return CreateUserInput{}, &Error{Op: op, Kind: ErrInvalidInput, Field: "password_hash", Detail: "required"}
	}
	return out, nil
}

// NewUserID returns a new ULID string (26 chars), sortable by creation time.
func NewUserID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
