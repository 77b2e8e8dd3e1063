// Package testutil opens throwaway SQLite databases for package tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stanstork/taskwatch/internal/migration"
	"github.com/stanstork/taskwatch/internal/repository"
)

// NewDB returns a migrated SQLite database living in a per-test directory.
func NewDB(t *testing.T) *sql.DB {
	t.Helper()
	db, dialect, err := repository.Open("sqlite", filepath.Join(t.TempDir(), "taskwatch.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := migration.Run(db, dialect, zerolog.Nop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
