// Package migrations holds the install history schema.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	"crystalsetup/internal/logging"
)

//go:embed *.sql
var embedMigrations embed.FS

func prepare() error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return nil
}

// Run applies all pending migrations
func Run(db *sql.DB) error {
	if err := prepare(); err != nil {
		return err
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Reset rolls every migration back
func Reset(db *sql.DB) error {
	if err := prepare(); err != nil {
		return err
	}
	if err := goose.Reset(db, "."); err != nil {
		return fmt.Errorf("failed to reset migrations: %w", err)
	}
	return nil
}

// Version returns the current schema version
func Version(db *sql.DB) (int64, error) {
	if err := prepare(); err != nil {
		return 0, err
	}
	v, err := goose.GetDBVersion(db)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// gooseLogger sends goose output to the debug log.
type gooseLogger struct{}

func (gooseLogger) Fatalf(format string, v ...interface{}) { logging.Error(format, v...) }
func (gooseLogger) Printf(format string, v ...interface{}) { logging.Debug(format, v...) }
