package database

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(entries))
	}

	body, err := fs.ReadFile(migrationsFS, "migrations/"+entries[1].Name())
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if !strings.Contains(string(body), "(user_id, token_hash)") {
		t.Fatal("expected a unique index on (user_id, token_hash)")
	}

	body, err = fs.ReadFile(migrationsFS, "migrations/"+entries[2].Name())
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if !strings.Contains(string(body), "username TYPE VARCHAR(100)") {
		t.Fatal("expected username to fit the 100 character profile limit")
	}
}

func TestMigrateRunsGooseUp(t *testing.T) {
	origUp, origOpen := gooseUp, openDB
	t.Cleanup(func() { gooseUp, openDB = origUp, origOpen })

	openDB = func(string) (*sql.DB, error) { return sql.Open("pgx", "postgres://u:p@localhost:1/db") }

	var dir string
	gooseUp = func(_ context.Context, _ *sql.DB, d string) error {
		dir = d
		return nil
	}

	if err := Migrate(context.Background(), "ignored", zaptest.NewLogger(t)); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}
	if dir != "migrations" {
		t.Fatalf("expected migrations dir, got %q", dir)
	}
}

func TestMigratePropagatesFailure(t *testing.T) {
	origUp, origOpen := gooseUp, openDB
	t.Cleanup(func() { gooseUp, openDB = origUp, origOpen })

	openDB = func(string) (*sql.DB, error) { return sql.Open("pgx", "postgres://u:p@localhost:1/db") }
	gooseUp = func(context.Context, *sql.DB, string) error { return errors.New("boom") }

	if err := Migrate(context.Background(), "ignored", nil); err == nil {
		t.Fatal("expected error")
	}
}
