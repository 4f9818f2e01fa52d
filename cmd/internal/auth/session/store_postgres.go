package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over the refresh_tokens and access_tokens tables.
// expiresat is stored as unix seconds.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store. The pool is owned by the caller.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

const sessionColumns = `id, user_id, refresh_token, fingerprint, expiresat, createdat`

func scanSession(row pgx.Row) (Session, error) {
	var (
		s   Session
		exp int64
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.RefreshToken, &s.Fingerprint, &exp, &s.CreatedAt); err != nil {
		return Session{}, err
	}
	s.ExpiresAt = time.Unix(exp, 0).UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

// Create inserts a new refresh_tokens row.
func (s *PostgresStore) Create(ctx context.Context, in Session) (Session, error) {
	const op = "session.Create"

	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	out, err := scanSession(s.pool.QueryRow(ctx, `
		INSERT INTO refresh_tokens (user_id, refresh_token, fingerprint, expiresat, createdat)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+sessionColumns,
		in.UserID, in.RefreshToken, in.Fingerprint, in.ExpiresAt.Unix(), createdAt,
	))
	if err != nil {
		return Session{}, classify(op, err)
	}
	return out, nil
}

// ReadByRefreshToken loads the session of userID holding refreshToken.
// Two matching rows would break the unique constraints and are reported as ErrConflict.
func (s *PostgresStore) ReadByRefreshToken(ctx context.Context, userID, refreshToken string) (Session, error) {
	const op = "session.ReadByRefreshToken"

	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM refresh_tokens
		WHERE user_id = $1 AND refresh_token = $2
		LIMIT 2
	`, userID, refreshToken)
	if err != nil {
		return Session{}, driverError(op, err)
	}
	defer rows.Close()

	var found []Session
	for rows.Next() {
		row, err := scanSession(rows)
		if err != nil {
			return Session{}, driverError(op, err)
		}
		found = append(found, row)
	}
	if err := rows.Err(); err != nil {
		return Session{}, driverError(op, err)
	}

	switch len(found) {
	case 0:
		return Session{}, OpError{Op: op, Kind: ErrNotFound}
	case 1:
		return found[0], nil
	default:
		return Session{}, ConflictError{Op: op, Constraint: "refresh_tokens_refresh_token_key"}
	}
}

// ReadByFingerprint loads the session of userID for a device.
func (s *PostgresStore) ReadByFingerprint(ctx context.Context, userID, fingerprint string) (Session, error) {
	const op = "session.ReadByFingerprint"

	out, err := scanSession(s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM refresh_tokens
		WHERE user_id = $1 AND fingerprint = $2
	`, userID, fingerprint))
	if err != nil {
		return Session{}, classify(op, err)
	}
	return out, nil
}

// Update rotates the refresh token of the row keyed by (UserID, Fingerprint).
func (s *PostgresStore) Update(ctx context.Context, in Session) (Session, error) {
	const op = "session.Update"

	out, err := scanSession(s.pool.QueryRow(ctx, `
		UPDATE refresh_tokens
		SET refresh_token = $3, expiresat = $4
		WHERE user_id = $1 AND fingerprint = $2
		RETURNING `+sessionColumns,
		in.UserID, in.Fingerprint, in.RefreshToken, in.ExpiresAt.Unix(),
	))
	if err != nil {
		return Session{}, classify(op, err)
	}
	return out, nil
}

// Delete removes the row matching all three values. access_tokens rows cascade.
func (s *PostgresStore) Delete(ctx context.Context, userID, refreshToken, fingerprint string) (Session, error) {
	const op = "session.Delete"

	out, err := scanSession(s.pool.QueryRow(ctx, `
		DELETE FROM refresh_tokens
		WHERE user_id = $1 AND refresh_token = $2 AND fingerprint = $3
		RETURNING `+sessionColumns,
		userID, refreshToken, fingerprint,
	))
	if err != nil {
		return Session{}, classify(op, err)
	}
	return out, nil
}

// CreateAccess inserts the access token of a session.
func (s *PostgresStore) CreateAccess(ctx context.Context, in AccessRecord) (AccessRecord, error) {
	const op = "session.CreateAccess"

	var out AccessRecord
	err := s.pool.QueryRow(ctx, `
		INSERT INTO access_tokens (refresh_id, access_token)
		VALUES ($1, $2)
		RETURNING id, refresh_id, access_token
	`, in.SessionID, in.AccessToken).Scan(&out.ID, &out.SessionID, &out.AccessToken)
	if err != nil {
		if isForeignKeyViolation(err) {
			return AccessRecord{}, OpError{Op: op, Kind: ErrNotFound, Err: err}
		}
		return AccessRecord{}, classify(op, err)
	}
	return out, nil
}

// UpdateAccess replaces the access token stored for a session.
func (s *PostgresStore) UpdateAccess(ctx context.Context, in AccessRecord) (AccessRecord, error) {
	const op = "session.UpdateAccess"

	var out AccessRecord
	err := s.pool.QueryRow(ctx, `
		UPDATE access_tokens
		SET access_token = $2
		WHERE refresh_id = $1
		RETURNING id, refresh_id, access_token
	`, in.SessionID, in.AccessToken).Scan(&out.ID, &out.SessionID, &out.AccessToken)
	if err != nil {
		return AccessRecord{}, classify(op, err)
	}
	return out, nil
}

// classify maps driver errors onto the store error kinds.
func classify(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return OpError{Op: op, Kind: ErrNotFound}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return ConflictError{Op: op, Constraint: pgErr.ConstraintName}
	}
	return driverError(op, err)
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
