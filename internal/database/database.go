// Package database opens the SQLite install history.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"crystalsetup/internal/logging"
	"crystalsetup/internal/migrations"
)

var db *sql.DB

// GetDB returns the handle opened by Initialize.
func GetDB() *sql.DB {
	return db
}

// Initialize opens dbPath, creating its folder, and migrates the schema.
func Initialize(dbPath string) error {
	var err error
	db, err = Open(dbPath)
	return err
}

// Open returns a migrated handle without touching the package global.
func Open(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrations.Run(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logging.Debug("Database initialized successfully at %s", dbPath)
	return conn, nil
}

// Close closes the handle opened by Initialize.
func Close() error {
	if db != nil {
		err := db.Close()
		db = nil
		return err
	}
	return nil
}
