package cli

import (
	"context"
	"time"

	"crystalsetup/internal/systemcheck"
)

// Exit codes returned by Execute.
const (
	ExitSuccess      = 0
	ExitRuntimeError = 1
	ExitInvalidUsage = 2
)

// ProgressEvent is one JSONL line of command output.
type ProgressEvent struct {
	Type    string      `json:"type"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Percent int         `json:"percent,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// InstallRequest carries the non-interactive answers to the setup pages.
type InstallRequest struct {
	Register        bool
	Username        string
	Password        string
	SaveFolder      string
	ProjectsFolder  string
	DesktopShortcut bool
	Addons          []string
}

// DevOverrides replace endpoints and the embedded version in developer mode.
type DevOverrides struct {
	CheckURL         string
	RegisterURL      string
	LoginURL         string
	InstallerVersion int
}

// WizardResult summarizes an interactive session.
type WizardResult struct {
	RunID     string `json:"run_id,omitempty"`
	Started   bool   `json:"started"`
	Installed bool   `json:"installed"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// CheckResult is one line of the system check report.
type CheckResult = systemcheck.CheckResult

// VersionStatus is the outcome of comparing against the published installer.
type VersionStatus struct {
	CurrentVersion int    `json:"current_version"`
	LatestVersion  int    `json:"latest_version"`
	Outdated       bool   `json:"outdated"`
	DownloadURL    string `json:"download_url,omitempty"`
}

// Run is one recorded install run.
type Run struct {
	ID          string     `json:"id"`
	Mode        string     `json:"mode"`
	Username    string     `json:"username,omitempty"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message,omitempty"`
	ErrorCode   string     `json:"error_code,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunLog is one log line of a recorded run.
type RunLog struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
}

// StoredAccount is the content of the secrets file with the token masked.
type StoredAccount struct {
	Username string `json:"username"`
	Token    string `json:"token"`
	Path     string `json:"path"`
}

// Manager abstracts core operations for the CLI.
type Manager interface {
	DevMode() bool
	EnableDevMode(overrides DevOverrides)

	Install(ctx context.Context, req InstallRequest) <-chan ProgressEvent
	Wizard(ctx context.Context) (WizardResult, error)

	Check(ctx context.Context) ([]CheckResult, error)
	VersionCheck(ctx context.Context) (VersionStatus, error)
	SelfUpdate(ctx context.Context) <-chan ProgressEvent

	History(ctx context.Context, limit int) ([]Run, error)
	RunLogs(ctx context.Context, runID string) ([]RunLog, error)

	StoredAccount(ctx context.Context) (StoredAccount, error)
}
