package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, username, role_name, password_hash, created_at`

// PostgresStore implements user persistence over PostgreSQL (table users).
// The pool is owned by the caller.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a store over pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.RoleName, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

// FindByUsername loads a user by normalized username.
func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (User, error) {
	const op = "identity.FindByUsername"

	name := NormalizeUsername(username)
	if name == "" {
		return User{}, &Error{Op: op, Kind: ErrNotFound}
	}

	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, name))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return User{}, &Error{Op: op, Kind: ErrNotFound}
	case err != nil:
		return User{}, &Error{Op: op, Kind: ErrDriver, Err: err}
	}
	return u, nil
}

// CreateUser inserts a user. A taken username is a conflict on field "username".
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	in, err := in.normalize(op)
	if err != nil {
		return User{}, err
	}
	id, err := NewUserID(in.Now)
	if err != nil {
		return User{}, err
	}

	u, err := scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		id, in.Username, in.RoleName, in.PasswordHash, in.Now,
	))
	if err != nil {
		if field, ok := uniqueViolationField(err); ok {
			return User{}, &Error{Op: op, Kind: ErrConflict, Field: field}
		}
		return User{}, &Error{Op: op, Kind: ErrDriver, Err: err}
	}
	return u, nil
}

// uniqueViolationField maps a 23505 constraint name to the logical field.
func uniqueViolationField(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}

	c := strings.ToLower(pgErr.ConstraintName)
	switch {
	case strings.Contains(c, "username"):
		return "username", true
	case strings.HasSuffix(c, "_pkey"):
		return "id", true
	default:
		return c, true
	}
}
