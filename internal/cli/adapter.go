package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"

	"crystalsetup/internal/auth"
	"crystalsetup/internal/config"
	"crystalsetup/internal/history"
	"crystalsetup/internal/installer"
	"crystalsetup/internal/logging"
	"crystalsetup/internal/progress"
	"crystalsetup/internal/secrets"
	"crystalsetup/internal/systemcheck"
	"crystalsetup/internal/tui"
	"crystalsetup/internal/update"
	"crystalsetup/internal/wizard"
)

// Error codes produced by the CLI itself rather than the install worker.
const (
	CodeAccountCheckFailed = "account_check_failed"
	CodeUsernameLookup     = "username_lookup_failed"
	CodeUpToDate           = "up_to_date"
	CodeNoDownload         = "no_download"
	CodeUpdateFailed       = "update_failed"
)

var errNoHistory = errors.New("install history is not available")

// NewManagerAdapter wires the installer packages for CLI usage. db may be
// nil, in which case runs are not recorded and history is unavailable.
func NewManagerAdapter(cfg *config.Config, db *sql.DB) Manager {
	return &managerAdapter{cfg: cfg, db: db, goos: runtime.GOOS}
}

type managerAdapter struct {
	cfg  *config.Config
	db   *sql.DB
	goos string
}

func (m *managerAdapter) DevMode() bool {
	return m.cfg.DevMode
}

func (m *managerAdapter) EnableDevMode(o DevOverrides) {
	m.cfg.DevMode = true
	logging.Warning("%s", config.DevModeWarning)

	if o.CheckURL != "" {
		m.cfg.CheckURL = o.CheckURL
	}
	if o.RegisterURL != "" {
		m.cfg.RegisterURL = o.RegisterURL
	}
	if o.LoginURL != "" {
		m.cfg.LoginURL = o.LoginURL
	}
	if o.InstallerVersion > 0 {
		m.cfg.InstallerVersion = o.InstallerVersion
	}
}

func (m *managerAdapter) accounts() *auth.Client {
	return auth.NewClient(m.cfg.HTTPTimeout, m.cfg.EscapeCredentials)
}

func (m *managerAdapter) endpoints() wizard.Endpoints {
	return wizard.Endpoints{
		CheckURL: m.cfg.CheckURL,
		LoginURL: m.cfg.LoginURL,
		UserURL:  m.cfg.UserURL,
	}
}

func (m *managerAdapter) updates() *update.Service {
	source := update.NewDescriptorSource(m.cfg.InstallerURL, m.cfg.HTTPTimeout)
	return update.NewService(m.cfg.InstallerVersion, source)
}

func (m *managerAdapter) Install(ctx context.Context, req InstallRequest) <-chan ProgressEvent {
	out := make(chan ProgressEvent, 1)
	go func() {
		defer close(out)

		base := installer.NewInstallConfig(m.cfg)
		state := wizard.InitialState(base, m.goos)
		if req.SaveFolder != "" {
			state.SaveFolder = req.SaveFolder
		}
		if req.ProjectsFolder != "" {
			state.ProjectFolder = req.ProjectsFolder
		}
		state.DesktopShortcut = req.DesktopShortcut
		state.AddonDiscord = contains(req.Addons, installer.AddonDiscord)
		state.AddonGame2D = contains(req.Addons, installer.AddonGame2D)
		state.Mode = auth.ModeLogin
		if req.Register {
			state.Mode = auth.ModeRegister
		}
		state.Username = req.Username
		state.Password = req.Password
		state.RepeatPassword = req.Password

		w := wizard.New(state, m.endpoints(), m.accounts())
		if err := w.Check(ctx); err != nil {
			out <- ProgressEvent{Type: string(progress.EventError), Code: CodeAccountCheckFailed, Message: err.Error()}
			return
		}
		ic, err := w.Finish(ctx, base)
		if err != nil {
			out <- ProgressEvent{Type: string(progress.EventError), Code: CodeUsernameLookup, Message: err.Error()}
			return
		}

		mgr, err := installer.NewManager(m.cfg, m.db)
		if err != nil {
			out <- ProgressEvent{Type: string(progress.EventError), Code: progress.CodeTransportFailed, Message: err.Error()}
			return
		}

		runID, events := mgr.Run(ctx, ic)
		out <- ProgressEvent{Type: "started", Data: map[string]string{"run_id": runID}}
		for ev := range events {
			out <- convertEvent(ev)
		}
	}()
	return out
}

func (m *managerAdapter) Wizard(ctx context.Context) (WizardResult, error) {
	checker := systemcheck.NewRunner(m.cfg)
	if res := checker.PrepareFolders(); res.Status != systemcheck.StatusOK {
		logging.Warning("%s: %s", res.Message, res.Details)
	}

	mgr, err := installer.NewManager(m.cfg, m.db)
	if err != nil {
		return WizardResult{}, err
	}

	res, err := tui.Run(ctx, tui.Options{
		Base:      installer.NewInstallConfig(m.cfg),
		Endpoints: m.endpoints(),
		Accounts:  m.accounts(),
		Installer: mgr,
		Checker:   checker,
		Updates:   m.updates(),
		DevMode:   m.cfg.DevMode,
		GOOS:      m.goos,
	})
	return WizardResult{
		RunID:     res.RunID,
		Started:   res.Started,
		Installed: res.Installed,
		Code:      res.Final.Code,
		Message:   res.Final.Message,
	}, err
}

func (m *managerAdapter) Check(ctx context.Context) ([]CheckResult, error) {
	return systemcheck.NewRunner(m.cfg).Run(ctx), nil
}

func (m *managerAdapter) VersionCheck(ctx context.Context) (VersionStatus, error) {
	info, err := m.updates().Check(ctx)
	if err != nil {
		return VersionStatus{}, err
	}
	return VersionStatus{
		CurrentVersion: info.CurrentVersion,
		LatestVersion:  info.LatestVersion,
		Outdated:       info.Outdated,
		DownloadURL:    info.DownloadURL,
	}, nil
}

func (m *managerAdapter) SelfUpdate(ctx context.Context) <-chan ProgressEvent {
	out := make(chan ProgressEvent, 1)
	go func() {
		defer close(out)
		err := m.updates().Apply(ctx, func(p update.UpdateProgress) {
			out <- ProgressEvent{Type: string(progress.EventProgress), Message: p.Message, Percent: int(p.Percentage), Data: map[string]string{"stage": p.Stage}}
		})
		switch {
		case err == nil:
			out <- ProgressEvent{Type: string(progress.EventDone), Message: "Installer updated, please start it again", Percent: 100}
		case errors.Is(err, update.ErrUpToDate):
			out <- ProgressEvent{Type: string(progress.EventDone), Code: CodeUpToDate, Message: "Installer is up to date", Percent: 100}
		case errors.Is(err, update.ErrNoDownload):
			out <- ProgressEvent{Type: string(progress.EventError), Code: CodeNoDownload, Message: update.OutdatedMessage}
		default:
			out <- ProgressEvent{Type: string(progress.EventError), Code: CodeUpdateFailed, Message: err.Error()}
		}
	}()
	return out
}

func (m *managerAdapter) History(ctx context.Context, limit int) ([]Run, error) {
	if m.db == nil {
		return nil, errNoHistory
	}
	runs, err := history.NewStore(m.db).ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	converted := make([]Run, 0, len(runs))
	for _, r := range runs {
		run := Run{
			ID:        r.ID,
			Mode:      r.Mode,
			Username:  r.Username,
			Status:    r.Status,
			Progress:  r.Progress,
			Message:   r.ProgressMessage.String,
			ErrorCode: r.ErrorCode.String,
			Error:     r.ErrorMessage.String,
			CreatedAt: r.CreatedAt,
		}
		if r.CompletedAt.Valid {
			completed := r.CompletedAt.Time
			run.CompletedAt = &completed
		}
		converted = append(converted, run)
	}
	return converted, nil
}

func (m *managerAdapter) RunLogs(ctx context.Context, runID string) ([]RunLog, error) {
	if m.db == nil {
		return nil, errNoHistory
	}
	if _, err := history.NewStore(m.db).GetRun(ctx, runID); err != nil {
		return nil, err
	}
	logs, err := history.GetRunLogs(ctx, m.db, runID)
	if err != nil {
		return nil, err
	}
	converted := make([]RunLog, 0, len(logs))
	for _, l := range logs {
		converted = append(converted, RunLog{
			Timestamp: l.Timestamp,
			Level:     l.Level,
			Message:   l.Message,
			Details:   l.Details.String,
		})
	}
	return converted, nil
}

func (m *managerAdapter) StoredAccount(_ context.Context) (StoredAccount, error) {
	creds, err := secrets.Load(m.cfg.SaveFolder)
	if err != nil {
		if errors.Is(err, secrets.ErrNotFound) {
			return StoredAccount{}, fmt.Errorf("no stored account in %s", m.cfg.SaveFolder)
		}
		return StoredAccount{}, err
	}
	return StoredAccount{
		Username: creds.Username,
		Token:    creds.Masked(),
		Path:     secrets.Path(m.cfg.SaveFolder),
	}, nil
}

func convertEvent(ev progress.Event) ProgressEvent {
	converted := ProgressEvent{
		Type:    string(ev.Type),
		Message: ev.Message,
		Code:    ev.Code,
		Percent: ev.Percent,
	}
	if ev.Step != "" {
		converted.Data = map[string]string{"step": string(ev.Step)}
	}
	return converted
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
