package store

import (
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ecto-chat/ecto-server/internal/store/migrations"
)

// gooseLogger adapts zerolog to the goose.Logger interface.
type gooseLogger struct {
	log zerolog.Logger
}

func (g gooseLogger) Fatalf(format string, v ...any) { g.log.Error().Msgf(format, v...) }
func (g gooseLogger) Printf(format string, v ...any) { g.log.Info().Msgf(format, v...) }

// Migrate runs all pending goose migrations for the active dialect using the
// embedded SQL files.
func (db *DB) Migrate() error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(gooseLogger{log: log.Logger})

	var gooseDialect, dir string
	switch db.dialect {
	case DialectPostgres:
		gooseDialect, dir = "postgres", "postgres"
	case DialectSQLite:
		gooseDialect, dir = "sqlite3", "sqlite"
	default:
		return fmt.Errorf("unknown dialect %q", db.dialect)
	}

	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.Up(db.sql, dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}
