package database

import (
	"database/sql"
	"encoding/json"
	"time"
)

// InstallRun is one execution of the install procedure.
type InstallRun struct {
	ID              string          `json:"id"`
	Mode            string          `json:"mode"`
	Username        string          `json:"username"`
	SaveFolder      string          `json:"save_folder"`
	ProjectsFolder  string          `json:"projects_folder"`
	InstallDir      string          `json:"install_dir"`
	DownloadURL     string          `json:"download_url"`
	Status          string          `json:"status"`
	Progress        int             `json:"progress"`
	ProgressMessage sql.NullString  `json:"-"`
	ErrorCode       sql.NullString  `json:"-"`
	ErrorMessage    sql.NullString  `json:"-"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	CompletedAt     sql.NullTime    `json:"-"`
}

// InstallRunLog is a single log line recorded during a run.
type InstallRunLog struct {
	ID        int            `json:"id"`
	RunID     string         `json:"run_id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Details   sql.NullString `json:"-"`
}

const (
	// Run statuses
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"

	// Log levels
	LogLevelDebug   = "debug"
	LogLevelInfo    = "info"
	LogLevelWarning = "warning"
	LogLevelError   = "error"
)
