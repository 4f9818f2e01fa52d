// Package session implements the refresh-session lifecycle: login, refresh
// rotation and logout.
//
// A session is one refresh_tokens row per (user, device fingerprint). Access
// and refresh tokens are signed JWTs (see cmd/security/token); the refresh
// token is stored as issued so it can be matched on rotation and logout.
//
// The service keeps no in-process state. Concurrent logins for one device are
// serialized by the store's unique constraints: a Create that loses the race
// reports ErrConflict and the service converges by updating the winning row.
//
// Transport (HTTP) integration lives in cmd/internal/auth/api.
package session
