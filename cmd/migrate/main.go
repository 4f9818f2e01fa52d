// Command migrate applies the embedded schema migrations.
//
//	go run ./cmd/migrate -direction up
package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"

	"authd/cmd/internal/config"
	"authd/cmd/internal/db"
)

func main() {
	var (
		direction = flag.String("direction", db.DirectionUp, "up or down")
		dsn       = flag.String("database", "", "Postgres URL (default: AUTHD_DATABASE_URL)")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	url := *dsn
	if url == "" {
		url = config.Default().String("AUTHD_DATABASE_URL", "")
	}

	err := db.Migrate(url, *direction)
	switch {
	case errors.Is(err, db.ErrNoChange):
		log.Info("migrate.no_change", "direction", *direction)
	case err != nil:
		log.Error("migrate.fail", "direction", *direction, "err", err)
		os.Exit(1)
	default:
		log.Info("migrate.ok", "direction", *direction)
	}
}
