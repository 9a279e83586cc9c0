// Package history records install runs and their logs in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crystalsetup/internal/database"
	"crystalsetup/internal/logging"
)

// ErrRunNotFound is returned for unknown run IDs.
var ErrRunNotFound = errors.New("install run not found")

// Store persists install runs.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps an open, migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// NewRun describes a run about to start.
type NewRun struct {
	ID             string
	Mode           string
	Username       string
	SaveFolder     string
	ProjectsFolder string
	InstallDir     string
	DownloadURL    string
	Metadata       interface{}
}

// CreateRun inserts a pending run.
func (s *Store) CreateRun(ctx context.Context, run NewRun) error {
	metadata := "{}"
	if run.Metadata != nil {
		b, err := json.Marshal(run.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal run metadata: %w", err)
		}
		metadata = string(b)
	}

	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO install_runs (id, mode, username, save_folder, projects_folder, install_dir, download_url, status, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Mode, run.Username, run.SaveFolder, run.ProjectsFolder, run.InstallDir, run.DownloadURL,
		database.StatusPending, metadata, now, now)
	if err != nil {
		return fmt.Errorf("failed to create install run: %w", err)
	}
	return nil
}

// UpdateProgress records the latest milestone of a running run.
func (s *Store) UpdateProgress(ctx context.Context, runID string, percent int, message string) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE install_runs
		SET status = ?, progress = ?, progress_message = ?, updated_at = ?
		WHERE id = ?
	`, database.StatusInProgress, percent, message, s.now(), runID)
	if err != nil {
		logging.Error("Failed to update run %s progress: %v", runID, err)
	}
}

// Complete marks a run as finished successfully.
func (s *Store) Complete(ctx context.Context, runID, message string) {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE install_runs
		SET status = ?, progress = 100, progress_message = ?, updated_at = ?, completed_at = ?
		WHERE id = ?
	`, database.StatusCompleted, message, now, now, runID)
	if err != nil {
		logging.Error("Failed to complete run %s: %v", runID, err)
	}
}

// Fail marks a run as failed with a machine code and message.
func (s *Store) Fail(ctx context.Context, runID, code, message string) {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE install_runs
		SET status = ?, error_code = ?, error_message = ?, updated_at = ?, completed_at = ?
		WHERE id = ?
	`, database.StatusFailed, code, message, now, now, runID)
	if err != nil {
		logging.Error("Failed to mark run %s failed: %v", runID, err)
	}
}

const runColumns = `id, mode, username, save_folder, projects_folder, install_dir, download_url, status,
	progress, progress_message, error_code, error_message, metadata, created_at, updated_at, completed_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (database.InstallRun, error) {
	var r database.InstallRun
	var metadata sql.NullString
	err := row.Scan(&r.ID, &r.Mode, &r.Username, &r.SaveFolder, &r.ProjectsFolder, &r.InstallDir, &r.DownloadURL,
		&r.Status, &r.Progress, &r.ProgressMessage, &r.ErrorCode, &r.ErrorMessage, &metadata,
		&r.CreatedAt, &r.UpdatedAt, &r.CompletedAt)
	if metadata.Valid {
		r.Metadata = json.RawMessage(metadata.String)
	}
	return r, err
}

// GetRun loads one run.
func (s *Store) GetRun(ctx context.Context, runID string) (database.InstallRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM install_runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrRunNotFound
	}
	if err != nil {
		return r, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]database.InstallRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM install_runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Error("Failed to close rows: %v", err)
		}
	}()

	var runs []database.InstallRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// MarkInterrupted fails runs left in progress by a process that never finished them.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE install_runs
		SET status = ?, error_code = 'interrupted', error_message = 'installer exited before the run finished', updated_at = ?
		WHERE status IN (?, ?)
	`, database.StatusFailed, s.now(), database.StatusPending, database.StatusInProgress)
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted runs: %w", err)
	}
	return res.RowsAffected()
}
