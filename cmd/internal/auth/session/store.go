package session

import (
	"context"
	"time"
)

// Session mirrors a refresh_tokens row.
// RefreshToken and Fingerprint are secrets and must never be logged.
type Session struct {
	ID           int64
	UserID       string
	RefreshToken string
	Fingerprint  string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// AccessRecord mirrors an access_tokens row: the current access token of a session.
type AccessRecord struct {
	ID          int64
	SessionID   int64
	AccessToken string
}

// Store abstracts persistence for sessions and their access records.
//
// Every operation is atomic at the row level. Uniqueness of refresh_token,
// (user_id, refresh_token, fingerprint) and (user_id, fingerprint) must be
// enforced by the implementation and reported as ErrConflict.
type Store interface {
	// Create inserts a session. ErrConflict on a unique violation.
	Create(ctx context.Context, s Session) (Session, error)

	// ReadByRefreshToken finds the session of userID holding refreshToken.
	// ErrNotFound if none, ErrConflict if more than one row matches.
	ReadByRefreshToken(ctx context.Context, userID, refreshToken string) (Session, error)

	// ReadByFingerprint finds the session of userID for a device. ErrNotFound if none.
	ReadByFingerprint(ctx context.Context, userID, fingerprint string) (Session, error)

	// Update replaces refresh token and expiry of the row keyed by (UserID, Fingerprint).
	// ErrNotFound if no row matches.
	Update(ctx context.Context, s Session) (Session, error)

	// Delete removes the matching session and returns it. Access records cascade.
	// ErrNotFound if nothing matched.
	Delete(ctx context.Context, userID, refreshToken, fingerprint string) (Session, error)

	// CreateAccess inserts the access record of a session. ErrConflict on a unique violation.
	CreateAccess(ctx context.Context, a AccessRecord) (AccessRecord, error)

	// UpdateAccess replaces the access token of a session. ErrNotFound if the session has none.
	UpdateAccess(ctx context.Context, a AccessRecord) (AccessRecord, error)
}
