package installer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"crystalsetup/internal/auth"
	"crystalsetup/internal/config"
	"crystalsetup/internal/deps"
	"crystalsetup/internal/history"
	"crystalsetup/internal/logging"
	"crystalsetup/internal/placement"
	"crystalsetup/internal/progress"
	"crystalsetup/internal/release"
	"crystalsetup/internal/secrets"
	"crystalsetup/internal/telemetry"
)

// Manager starts install runs and records them in the history database.
type Manager struct {
	auth    Authenticator
	fetcher Fetcher
	newDeps func(command, upgradeArgs []string) DependencyInstaller

	db      *sql.DB
	store   *history.Store
	tracker *progress.Tracker
	newID   func() string
}

// NewManager wires the production collaborators. db may be nil, in which
// case runs are not recorded.
func NewManager(cfg *config.Config, db *sql.DB) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	m := &Manager{
		auth:    auth.NewClient(cfg.HTTPTimeout, cfg.EscapeCredentials),
		fetcher: release.NewFetcher(cfg.HTTPTimeout),
		newDeps: func(command, upgradeArgs []string) DependencyInstaller {
			return deps.NewInstaller(command, upgradeArgs)
		},
		db:      db,
		tracker: progress.NewTracker(),
		newID:   uuid.NewString,
	}
	if db != nil {
		m.store = history.NewStore(db)
	}
	return m, nil
}

// Tracker exposes the live progress of runs started by this manager.
func (m *Manager) Tracker() *progress.Tracker {
	return m.tracker
}

// History returns the run store, or nil when runs are not recorded.
func (m *Manager) History() *history.Store {
	return m.store
}

// Run starts one install on its own goroutine. Events arrive in milestone
// order; the last one is either done or error, then the channel closes.
func (m *Manager) Run(ctx context.Context, ic InstallConfig) (string, <-chan progress.Event) {
	runID := m.newID()
	ch := make(chan progress.Event, 1)

	r := &run{
		id:      runID,
		cfg:     ic.clone(),
		manager: m,
		emitter: progress.NewEmitter(ch, ic.StepDelay),
		logger:  history.NewRunLogger(m.db, runID),
	}

	m.tracker.Start(runID)
	m.recordStart(ctx, r)

	go func() {
		defer close(ch)
		r.execute(ctx)
	}()
	return runID, ch
}

func (m *Manager) recordStart(ctx context.Context, r *run) {
	if m.store == nil {
		return
	}
	err := m.store.CreateRun(ctx, history.NewRun{
		ID:             r.id,
		Mode:           r.cfg.Mode().String(),
		Username:       r.cfg.Username,
		SaveFolder:     r.cfg.SaveFolder,
		ProjectsFolder: r.cfg.ProjectsFolder,
		InstallDir:     r.cfg.InstallDir,
		DownloadURL:    r.cfg.DownloadURL,
		Metadata:       r.cfg.Options,
	})
	if err != nil {
		logging.Error("Failed to record run %s: %v", r.id, err)
	}
}

// stepError is a failure that ends the run with a machine code.
type stepError struct {
	code string
	err  error
}

func (e *stepError) Error() string { return e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

func fail(code string, err error) error {
	return &stepError{code: code, err: err}
}

type run struct {
	id      string
	cfg     InstallConfig
	manager *Manager
	emitter *progress.Emitter
	logger  *history.RunLogger

	root     string
	manifest *release.Manifest
}

type stepFunc func(ctx context.Context) error

func (r *run) execute(ctx context.Context) {
	ctx, span := telemetry.StartSpan(ctx, "install.run")
	span.SetAttributes(
		attribute.String("run.id", r.id),
		attribute.String("run.mode", r.cfg.Mode().String()),
	)
	defer span.End()

	r.logger.LogInfo(fmt.Sprintf("Install run started (%s)", r.cfg.Mode()))

	milestones := progress.Milestones(r.cfg.CreateAccount)
	steps := map[progress.Step]stepFunc{
		progress.StepAuthenticate: r.authenticate,
		progress.StepPrepare:      r.prepare,
		progress.StepDownload:     r.download,
		progress.StepUnpack:       r.unpack,
		progress.StepSafeInstall:  r.loadManifest,
		progress.StepLibraries:    r.installLibraries,
		progress.StepInstall:      r.placeContent,
		progress.StepSetup:        r.setup,
		progress.StepFinish:       r.finish,
	}

	for _, ms := range milestones {
		if err := ctx.Err(); err != nil {
			r.fail(progress.CodeCancelled, err)
			span.SetStatus(codes.Error, err.Error())
			return
		}

		r.milestone(ms)

		stepCtx, stepSpan := telemetry.StartSpan(ctx, "install."+string(ms.Step))
		err := steps[ms.Step](stepCtx)
		if err != nil {
			stepSpan.RecordError(err)
			stepSpan.SetStatus(codes.Error, err.Error())
		}
		stepSpan.End()

		if err != nil {
			code := progress.CodeTransportFailed
			var se *stepError
			if errors.As(err, &se) {
				code = se.code
			}
			r.fail(code, err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
	}

	r.emitter.Done()
	r.manager.tracker.Apply(r.id, progress.Event{Type: progress.EventDone, Message: progress.FinishedMessage, Percent: 100})
	r.logger.LogInfo("Install run completed")
	if r.manager.store != nil {
		r.manager.store.Complete(context.WithoutCancel(ctx), r.id, progress.FinishedMessage)
	}
}

func (r *run) milestone(ms progress.Milestone) {
	r.emitter.Milestone(ms)
	percent := r.emitter.Percent()

	r.manager.tracker.Apply(r.id, progress.Event{Type: progress.EventProgress, Step: ms.Step, Message: ms.Text, Percent: percent})
	r.logger.LogProgress(ms.Text, percent)
	if r.manager.store != nil {
		r.manager.store.UpdateProgress(context.Background(), r.id, percent, ms.Text)
	}
}

func (r *run) fail(code string, err error) {
	message := err.Error()
	r.emitter.Fail(code, message)
	r.manager.tracker.Apply(r.id, progress.Event{Type: progress.EventError, Code: code, Message: message})
	r.logger.LogError(message, map[string]interface{}{"code": code})
	if r.manager.store != nil {
		r.manager.store.Fail(context.Background(), r.id, code, message)
	}
}

func (r *run) authenticate(ctx context.Context) error {
	token, err := r.manager.auth.Authenticate(ctx, r.cfg.Mode(), r.cfg.AuthTemplate(), r.cfg.Username, r.cfg.Password)
	if err != nil {
		var authErr *auth.Error
		if errors.As(err, &authErr) {
			return fail(progress.CodeAuthFailed, err)
		}
		return fail(progress.CodeTransportFailed, err)
	}

	creds := secrets.Credentials{Username: r.cfg.Username, Token: token}
	if err := secrets.Save(ctx, r.cfg.SaveFolder, creds); err != nil {
		return fail(progress.CodeSecretsFailed, err)
	}
	r.logger.LogInfo("Credentials saved", map[string]interface{}{"username": creds.Username, "path": secrets.Path(r.cfg.SaveFolder)})
	return nil
}

func (r *run) prepare(_ context.Context) error {
	if err := config.CheckScratchDir(r.cfg.ScratchDir, r.cfg.InstallDir, r.cfg.SaveFolder, r.cfg.ProjectsFolder); err != nil {
		return fail(progress.CodeExtractFailed, fmt.Errorf("refusing scratch directory: %w", err))
	}
	if err := os.RemoveAll(r.cfg.ScratchDir); err != nil {
		return fail(progress.CodeExtractFailed, fmt.Errorf("clear scratch directory: %w", err))
	}
	if err := os.MkdirAll(r.cfg.ScratchDir, 0o755); err != nil {
		return fail(progress.CodeExtractFailed, fmt.Errorf("create scratch directory: %w", err))
	}
	return nil
}

func (r *run) download(ctx context.Context) error {
	path, err := r.manager.fetcher.Download(ctx, r.cfg.DownloadURL, r.cfg.ScratchDir)
	if err != nil {
		return fail(progress.CodeTransportFailed, err)
	}
	r.logger.LogInfo("Release downloaded", map[string]interface{}{"url": r.cfg.DownloadURL, "path": path})
	return nil
}

func (r *run) unpack(_ context.Context) error {
	archive := filepath.Join(r.cfg.ScratchDir, release.ArchiveName)
	root, err := release.Extract(archive, r.cfg.ScratchDir)
	if err != nil {
		return fail(progress.CodeExtractFailed, err)
	}

	// Flat archives extract next to download.zip; fall back to the tag
	// directory name when one was unpacked.
	if _, statErr := os.Stat(filepath.Join(root, release.ManifestName)); statErr != nil {
		if name := release.RootNameFromURL(r.cfg.DownloadURL); name != "" {
			candidate := filepath.Join(r.cfg.ScratchDir, name)
			if info, err := os.Stat(candidate); err == nil && info.IsDir() {
				root = candidate
			}
		}
	}

	r.root = root
	r.logger.LogDebug("Release unpacked", map[string]interface{}{"root": root})
	return nil
}

func (r *run) loadManifest(_ context.Context) error {
	manifest, err := release.LoadManifest(r.root)
	if err != nil {
		return fail(progress.CodeManifestInvalid, err)
	}
	r.manifest = manifest
	r.logger.LogInfo(fmt.Sprintf("Manifest lists %d libraries and %d content entries", len(manifest.Libs), len(manifest.Content)))
	return nil
}

func (r *run) installLibraries(ctx context.Context) error {
	if len(r.manifest.Libs) == 0 {
		return nil
	}
	if len(r.cfg.PackageManager) == 0 {
		r.logger.LogWarning("No package manager configured, skipping libraries")
		return nil
	}

	installer := r.manager.newDeps(r.cfg.PackageManager, r.cfg.UpgradeArgs)
	installer.Install(ctx, r.manifest.Libs, func(res deps.Result) {
		if res.Status == deps.StatusFailed {
			r.logger.LogWarning(fmt.Sprintf("%s failed: %s", res.Command, res.Err))
			return
		}
		r.logger.LogCommand(res.Command, string(res.Status))
	})
	return nil
}

func (r *run) placeContent(_ context.Context) error {
	if err := os.MkdirAll(r.cfg.InstallDir, 0o755); err != nil {
		return fail(progress.CodePlacementFailed, fmt.Errorf("create install directory: %w", err))
	}

	placed, err := placement.Place(r.root, r.cfg.InstallDir, r.manifest.Content, func(entry string) {
		r.logger.LogDebug("Placed " + entry)
	})
	if err != nil {
		r.logger.LogWarning(fmt.Sprintf("Placement stopped after %d of %d entries", len(placed), len(r.manifest.Content)))
		return fail(progress.CodePlacementFailed, err)
	}
	return nil
}

func (r *run) setup(_ context.Context) error {
	if err := os.MkdirAll(r.cfg.ProjectsFolder, 0o755); err != nil {
		return fail(progress.CodePlacementFailed, fmt.Errorf("create projects folder: %w", err))
	}
	if len(r.cfg.Options.Addons) > 0 {
		r.logger.LogInfo("Addons selected: " + strings.Join(r.cfg.Options.Addons, ", "))
	}
	if r.cfg.Options.DesktopShortcut {
		r.logger.LogInfo("Desktop shortcut requested")
	}
	return nil
}

func (r *run) finish(_ context.Context) error {
	if err := os.RemoveAll(r.cfg.ScratchDir); err != nil {
		r.logger.LogWarning(fmt.Sprintf("Failed to remove scratch directory: %v", err))
	}
	return nil
}
