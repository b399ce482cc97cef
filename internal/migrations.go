package internal

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/feedgen/migrations"
	"github.com/pressly/goose/v3"
)

// RunMigrations executes all pending catalog schema migrations.
// dialect is a goose dialect name: "postgres" or "sqlite3".
func RunMigrations(db *sql.DB, dialect string) error {
	goose.SetBaseFS(migrations.MigrationsFS)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
