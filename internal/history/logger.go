package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"crystalsetup/internal/database"
	"crystalsetup/internal/logging"
)

// RunLogger writes log lines for one install run to the database and the process log
type RunLogger struct {
	db    *sql.DB
	runID string
	mu    sync.Mutex
}

// NewRunLogger creates a logger for a specific run
func NewRunLogger(db *sql.DB, runID string) *RunLogger {
	return &RunLogger{db: db, runID: runID}
}

// LogDebug logs a debug message
func (rl *RunLogger) LogDebug(message string, details ...map[string]interface{}) {
	rl.log(database.LogLevelDebug, message, details...)
}

// LogInfo logs an info message
func (rl *RunLogger) LogInfo(message string, details ...map[string]interface{}) {
	rl.log(database.LogLevelInfo, message, details...)
}

// LogWarning logs a warning message
func (rl *RunLogger) LogWarning(message string, details ...map[string]interface{}) {
	rl.log(database.LogLevelWarning, message, details...)
}

// LogError logs an error message
func (rl *RunLogger) LogError(message string, details ...map[string]interface{}) {
	rl.log(database.LogLevelError, message, details...)
}

// LogCommand logs an external command and its outcome
func (rl *RunLogger) LogCommand(command, status string) {
	rl.LogInfo(fmt.Sprintf("%s: %s", command, status), map[string]interface{}{
		"command": command,
		"status":  status,
		"type":    "command",
	})
}

// LogProgress logs a milestone
func (rl *RunLogger) LogProgress(message string, percent int) {
	rl.LogInfo(message, map[string]interface{}{
		"percent": percent,
		"type":    "progress",
	})
}

func (rl *RunLogger) log(level, message string, details ...map[string]interface{}) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	var detailsJSON sql.NullString
	if len(details) > 0 && details[0] != nil {
		jsonBytes, err := json.Marshal(details[0])
		if err != nil {
			logging.Error("Failed to marshal log details: %v", err)
		} else {
			detailsJSON = sql.NullString{String: string(jsonBytes), Valid: true}
		}
	}

	if rl.db != nil {
		_, err := rl.db.Exec(`
			INSERT INTO install_run_logs (run_id, timestamp, level, message, details)
			VALUES (?, ?, ?, ?, ?)
		`, rl.runID, time.Now(), level, message, detailsJSON)
		if err != nil {
			logging.Error("Failed to write run log: %v", err)
		}
	}

	entry := logging.WithField("run", rl.runID)
	switch level {
	case database.LogLevelError:
		entry.Error(message)
	case database.LogLevelWarning:
		entry.Warn(message)
	case database.LogLevelDebug:
		entry.Debug(message)
	default:
		entry.Info(message)
	}
}

// GetRunLogs retrieves all logs for a run
func GetRunLogs(ctx context.Context, db *sql.DB, runID string) ([]database.InstallRunLog, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, run_id, timestamp, level, message, details
		FROM install_run_logs
		WHERE run_id = ?
		ORDER BY timestamp ASC, id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Error("Failed to close rows: %v", err)
		}
	}()

	var logs []database.InstallRunLog
	for rows.Next() {
		var l database.InstallRunLog
		if err := rows.Scan(&l.ID, &l.RunID, &l.Timestamp, &l.Level, &l.Message, &l.Details); err != nil {
			return nil, fmt.Errorf("failed to scan log row: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// CleanupOldRuns removes runs and their logs older than the specified duration
func CleanupOldRuns(ctx context.Context, db *sql.DB, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)

	result, err := db.ExecContext(ctx, `DELETE FROM install_runs WHERE created_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup old runs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		logging.Error("Failed to get affected rows: %v", err)
		affected = 0
	}
	if affected > 0 {
		logging.Info("Cleaned up %d old install runs", affected)
	}
	return nil
}
