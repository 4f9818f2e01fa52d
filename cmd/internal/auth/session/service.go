package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"authd/cmd/identity"
	"authd/cmd/security/token"
)

// Subject keys carried in token payloads.
const (
	SubjectUserID      = "user_id"
	SubjectRoleName    = "role_name"
	SubjectFingerprint = "fingerprint"
)

// UserFinder loads users for login.
type UserFinder interface {
	FindByUsername(ctx context.Context, username string) (identity.User, error)
}

// PasswordVerifier checks a plaintext password against a stored encoded hash.
type PasswordVerifier interface {
	Verify(plain, encoded string) (bool, error)
}

// Service implements login, refresh rotation and logout over a Store.
// It holds no mutable state of its own and is safe for concurrent use.
type Service struct {
	cfg       Config
	store     Store
	users     UserFinder
	passwords PasswordVerifier
	access    *token.Codec
	refresh   *token.Codec

	metrics   *Metrics
	dummyHash string
	now       func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithMetrics records outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithDummyHash sets an encoded hash verified against for unknown usernames,
// so that both login failure paths cost one password verification.
func WithDummyHash(encoded string) Option {
	return func(s *Service) { s.dummyHash = encoded }
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires a Service. access and refresh must be codecs of the matching type.
func NewService(cfg Config, store Store, users UserFinder, passwords PasswordVerifier, access, refresh *token.Codec, opts ...Option) (*Service, error) {
	switch {
	case store == nil:
		return nil, fmt.Errorf("%w: nil store", ErrConfig)
	case users == nil:
		return nil, fmt.Errorf("%w: nil user finder", ErrConfig)
	case passwords == nil:
		return nil, fmt.Errorf("%w: nil password verifier", ErrConfig)
	case access == nil || access.Type() != token.TypeAccess:
		return nil, fmt.Errorf("%w: access codec required", ErrConfig)
	case refresh == nil || refresh.Type() != token.TypeRefresh:
		return nil, fmt.Errorf("%w: refresh codec required", ErrConfig)
	}
	if cfg.MaxFingerprintLen <= 0 {
		cfg.MaxFingerprintLen = DefaultFingerprintMaxLen
	}

	s := &Service{
		cfg:       cfg,
		store:     store,
		users:     users,
		passwords: passwords,
		access:    access,
		refresh:   refresh,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issued is the result of a login or a refresh.
type Issued struct {
	SessionID        int64
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	RoleName         string
}

// LoginInput carries the credentials of a login.
type LoginInput struct {
	Username    string
	Password    string
	Fingerprint string
}

// RefreshInput carries a verified refresh token.
type RefreshInput struct {
	Claims      token.Payload
	RawRefresh  string
	Fingerprint string
}

// LogoutInput carries a verified refresh token to revoke.
type LogoutInput struct {
	Claims      token.Payload
	RawRefresh  string
	Fingerprint string
}

// ValidFingerprint reports whether fp is acceptable as a device fingerprint.
func (s *Service) ValidFingerprint(fp string) bool {
	if strings.TrimSpace(fp) == "" {
		return false
	}
	return utf8.RuneCountInString(fp) <= s.cfg.MaxFingerprintLen
}

// Login authenticates a user and returns a token pair bound to the device fingerprint.
// A device that already holds a live session keeps its refresh token; an expired one
// gets a fresh token on the same row.
func (s *Service) Login(ctx context.Context, in LoginInput) (out Issued, err error) {
	const op = "session.Login"
	defer func() { s.metrics.observe("login", err) }()

	if !s.ValidFingerprint(in.Fingerprint) {
		return Issued{}, OpError{Op: op, Kind: ErrInvalidInput, Err: errors.New("fingerprint")}
	}

	user, err := s.authenticate(ctx, in.Username, in.Password)
	if err != nil {
		return Issued{}, err
	}

	accessRaw, _, err := s.access.Mint(map[string]any{
		SubjectUserID:   user.ID,
		SubjectRoleName: user.RoleName,
	}, 0)
	if err != nil {
		return Issued{}, fmt.Errorf("%s: mint access: %w", op, err)
	}

	row, err := s.store.ReadByFingerprint(ctx, user.ID, in.Fingerprint)
	switch {
	case err == nil && row.ExpiresAt.After(s.now()):
		// Same device logging in again keeps its refresh token.
	case err == nil:
		row, err = s.renewSession(ctx, user, in.Fingerprint)
		if err != nil {
			return Issued{}, err
		}
	case errors.Is(err, ErrNotFound):
		row, err = s.openSession(ctx, user, in.Fingerprint)
		if err != nil {
			return Issued{}, err
		}
	default:
		return Issued{}, storeError(op, err)
	}

	if err := s.putAccess(ctx, row.ID, accessRaw); err != nil {
		return Issued{}, err
	}

	return Issued{
		SessionID:        row.ID,
		AccessToken:      accessRaw,
		RefreshToken:     row.RefreshToken,
		RefreshExpiresAt: row.ExpiresAt,
		RoleName:         user.RoleName,
	}, nil
}

func (s *Service) authenticate(ctx context.Context, username, password string) (identity.User, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			s.burnVerify(password)
			return identity.User{}, ErrInvalidCredentials
		}
		return identity.User{}, driverError("session.Login", err)
	}

	ok, err := s.passwords.Verify(password, user.PasswordHash)
	if err != nil {
		return identity.User{}, driverError("session.Login", err)
	}
	if !ok {
		return identity.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) burnVerify(password string) {
	if s.dummyHash == "" {
		return
	}
	_, _ = s.passwords.Verify(password, s.dummyHash)
}

// newSessionRow mints a refresh token for the device and wraps it in an unsaved row.
func (s *Service) newSessionRow(user identity.User, fingerprint string) (Session, error) {
	raw, payload, err := s.refresh.Mint(map[string]any{
		SubjectUserID:      user.ID,
		SubjectFingerprint: fingerprint,
		SubjectRoleName:    user.RoleName,
	}, 0)
	if err != nil {
		return Session{}, fmt.Errorf("session.Login: mint refresh: %w", err)
	}
	return Session{
		UserID:       user.ID,
		RefreshToken: raw,
		Fingerprint:  fingerprint,
		ExpiresAt:    payload.ExpiresAt,
		CreatedAt:    s.now().UTC(),
	}, nil
}

// openSession creates the refresh row for a new device. A concurrent login of the
// same device surfaces as a conflict; the loser returns the row the winner created
// so both callers hold the same working refresh token.
func (s *Service) openSession(ctx context.Context, user identity.User, fingerprint string) (Session, error) {
	const op = "session.Login"

	next, err := s.newSessionRow(user, fingerprint)
	if err != nil {
		return Session{}, err
	}

	row, err := s.store.Create(ctx, next)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, ErrConflict) {
		return Session{}, storeError(op, err)
	}
	conflict := err

	row, err = s.store.ReadByFingerprint(ctx, user.ID, fingerprint)
	switch {
	case err == nil && row.ExpiresAt.After(s.now()):
		return row, nil
	case err == nil:
		// The row in the way is a stale one; take it over.
		row, err = s.store.Update(ctx, next)
		if err != nil {
			return Session{}, storeError(op, err)
		}
		return row, nil
	case errors.Is(err, ErrNotFound):
		// The conflict was not on the device key.
		return Session{}, storeError(op, conflict)
	default:
		return Session{}, storeError(op, err)
	}
}

// renewSession replaces the expired refresh token of a known device in place.
func (s *Service) renewSession(ctx context.Context, user identity.User, fingerprint string) (Session, error) {
	next, err := s.newSessionRow(user, fingerprint)
	if err != nil {
		return Session{}, err
	}

	row, err := s.store.Update(ctx, next)
	switch {
	case err == nil:
		return row, nil
	case errors.Is(err, ErrNotFound):
		// Deleted by a concurrent refresh or logout since the read.
		return s.openSession(ctx, user, fingerprint)
	default:
		return Session{}, storeError("session.Login", err)
	}
}

// Refresh rotates a refresh token. The located row is deleted before it is validated,
// so an expired or foreign-device token also loses its session.
func (s *Service) Refresh(ctx context.Context, in RefreshInput) (out Issued, err error) {
	const op = "session.Refresh"
	defer func() { s.metrics.observe("refresh", err) }()

	userID := in.Claims.SubjectString(SubjectUserID)
	if userID == "" || in.RawRefresh == "" {
		return Issued{}, ErrInvalidToken
	}

	row, err := s.store.ReadByRefreshToken(ctx, userID, in.RawRefresh)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		return Issued{}, ErrUnauthorized
	case errors.Is(err, ErrConflict):
		return Issued{}, ErrInvalidToken
	default:
		return Issued{}, storeError(op, err)
	}

	if _, err := s.store.Delete(ctx, row.UserID, row.RefreshToken, row.Fingerprint); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Another refresh of the same token won the race.
			return Issued{}, ErrUnauthorized
		}
		return Issued{}, storeError(op, err)
	}

	if !row.ExpiresAt.After(s.now()) || !sameFingerprint(row.Fingerprint, in.Fingerprint) {
		return Issued{}, ErrTokenExpired
	}

	roleName := in.Claims.SubjectString(SubjectRoleName)

	accessRaw, _, err := s.access.Mint(map[string]any{
		SubjectUserID:   row.UserID,
		SubjectRoleName: roleName,
	}, 0)
	if err != nil {
		return Issued{}, fmt.Errorf("%s: mint access: %w", op, err)
	}
	refreshRaw, payload, err := s.refresh.Mint(map[string]any{
		SubjectUserID:      row.UserID,
		SubjectFingerprint: row.Fingerprint,
		SubjectRoleName:    roleName,
	}, 0)
	if err != nil {
		return Issued{}, fmt.Errorf("%s: mint refresh: %w", op, err)
	}

	next := Session{
		UserID:       row.UserID,
		RefreshToken: refreshRaw,
		Fingerprint:  row.Fingerprint,
		ExpiresAt:    payload.ExpiresAt,
		CreatedAt:    s.now().UTC(),
	}
	// The row is gone by now, so Update normally misses and Create does the write.
	// Update still goes first: rotation replaces the device's row rather than adding one.
	saved, err := s.store.Update(ctx, next)
	if errors.Is(err, ErrNotFound) {
		saved, err = s.store.Create(ctx, next)
	}
	if err != nil {
		return Issued{}, storeError(op, err)
	}

	if err := s.putAccess(ctx, saved.ID, accessRaw); err != nil {
		return Issued{}, err
	}

	return Issued{
		SessionID:        saved.ID,
		AccessToken:      accessRaw,
		RefreshToken:     saved.RefreshToken,
		RefreshExpiresAt: saved.ExpiresAt,
		RoleName:         roleName,
	}, nil
}

// Logout revokes the session identified by the refresh token and fingerprint.
func (s *Service) Logout(ctx context.Context, in LogoutInput) (out Session, err error) {
	const op = "session.Logout"
	defer func() { s.metrics.observe("logout", err) }()

	userID := in.Claims.SubjectString(SubjectUserID)
	if userID == "" || in.RawRefresh == "" {
		return Session{}, ErrInvalidToken
	}

	row, err := s.store.Delete(ctx, userID, in.RawRefresh, in.Fingerprint)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrUnauthorized
		}
		return Session{}, storeError(op, err)
	}
	return row, nil
}

// putAccess records accessRaw as the current access token of a session.
func (s *Service) putAccess(ctx context.Context, sessionID int64, accessRaw string) error {
	const op = "session.putAccess"

	rec := AccessRecord{SessionID: sessionID, AccessToken: accessRaw}
	_, err := s.store.UpdateAccess(ctx, rec)
	if errors.Is(err, ErrNotFound) {
		_, err = s.store.CreateAccess(ctx, rec)
		if errors.Is(err, ErrConflict) {
			_, err = s.store.UpdateAccess(ctx, rec)
		}
	}
	if err != nil {
		return storeError(op, err)
	}
	return nil
}

func sameFingerprint(stored, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

// storeError keeps typed store errors and classifies everything else as a driver failure.
func storeError(op string, err error) error {
	var (
		oe OpError
		ce ConflictError
	)
	if errors.As(err, &oe) || errors.As(err, &ce) {
		return err
	}
	return driverError(op, err)
}
