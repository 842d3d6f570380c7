package postgres

import (
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate() error {
	const op = "storage.postgres.Migrate"

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("%s: set dialect: %w", op, err)
	}

	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("%s: up: %w", op, err)
	}

	return nil
}
