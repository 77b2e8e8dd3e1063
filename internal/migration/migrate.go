package migration

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/stanstork/taskwatch/internal/repository"
)

// Embed SQL files for every supported dialect.
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var embeddedMigrations embed.FS

// Run applies all pending migrations for the given dialect.
func Run(db *sql.DB, dialect repository.Dialect, logger zerolog.Logger) error {
	goose.SetBaseFS(embeddedMigrations)
	goose.SetLogger(NewGooseAdapter(logger))

	var dir, gooseDialect string
	switch dialect {
	case repository.DialectPostgres:
		dir, gooseDialect = "migrations/postgres", "postgres"
	case repository.DialectSQLite:
		dir, gooseDialect = "migrations/sqlite", "sqlite3"
	default:
		return fmt.Errorf("unsupported dialect %q", dialect)
	}

	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	logger.Info().Str("dialect", string(dialect)).Msg("Migrations completed successfully")
	return nil
}

// GooseAdapter routes goose output through zerolog.
type GooseAdapter struct {
	logger zerolog.Logger
}

func NewGooseAdapter(logger zerolog.Logger) *GooseAdapter {
	return &GooseAdapter{logger: logger.With().Str("component", "goose").Logger()}
}

func (a *GooseAdapter) Fatalf(format string, v ...interface{}) {
	a.logger.Fatal().Msgf(format, v...)
}

func (a *GooseAdapter) Printf(format string, v ...interface{}) {
	a.logger.Debug().Msgf(format, v...)
}
