package db

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrationFS_PairsUpAndDown(t *testing.T) {
	t.Parallel()

	entries, err := fs.ReadDir(MigrationFS, "migrations")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file in migrations: %s", name)
		}
	}
	if len(ups) == 0 {
		t.Fatalf("no migrations embedded")
	}
	for k := range ups {
		if !downs[k] {
			t.Fatalf("migration %s has no down file", k)
		}
	}
}

func TestMigrationFS_SessionSchemaConstraints(t *testing.T) {
	t.Parallel()

	b, err := fs.ReadFile(MigrationFS, "migrations/000002_create_refresh_tokens.up.sql")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	sql := string(b)
	for _, want := range []string{
		"UNIQUE (refresh_token)",
		"UNIQUE (user_id, refresh_token, fingerprint)",
		"UNIQUE (user_id, fingerprint)",
		"ON DELETE CASCADE",
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("refresh_tokens migration missing %q", want)
		}
	}
}

func TestMigrate_RejectsBadInput(t *testing.T) {
	t.Parallel()

	if err := Migrate("", DirectionUp); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
	if err := Migrate("postgres://localhost/x", "sideways"); err == nil {
		t.Fatalf("expected error for bad direction")
	}
}
