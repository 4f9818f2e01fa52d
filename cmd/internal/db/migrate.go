package db

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ErrNoChange is returned when there is nothing to apply in the requested direction.
var ErrNoChange = migrate.ErrNoChange

const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Migrate applies the embedded migrations to dsn in direction ("up" or "down").
// ErrNoChange is returned (wrapped) when the schema is already at the target version.
func Migrate(dsn, direction string) error {
	if dsn == "" {
		return errors.New("migrate: database url is empty (set AUTHD_DATABASE_URL)")
	}
	if direction != DirectionUp && direction != DirectionDown {
		return fmt.Errorf("migrate: direction must be up or down, got %q", direction)
	}

	src, err := iofs.New(MigrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if direction == DirectionUp {
		err = m.Up()
	} else {
		err = m.Down()
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}
	return nil
}

// MigrateUp applies pending migrations, treating ErrNoChange as success.
func MigrateUp(dsn string) error {
	if err := Migrate(dsn, DirectionUp); err != nil && !errors.Is(err, ErrNoChange) {
		return err
	}
	return nil
}
