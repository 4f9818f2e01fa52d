// Package db holds the schema migrations and the runner that applies them.
package db

import "embed"

// MigrationFS embeds the SQL migrations (golang-migrate naming: NNNNNN_title.{up,down}.sql).
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
