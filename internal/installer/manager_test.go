package installer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crystalsetup/internal/config"
	"crystalsetup/internal/database"
	"crystalsetup/internal/deps"
	"crystalsetup/internal/history"
	"crystalsetup/internal/progress"
	"crystalsetup/internal/release/releasetest"
	"crystalsetup/internal/secrets"
)

type fakeDeps struct {
	libs []string
}

func (f *fakeDeps) Install(_ context.Context, libs []string, observe func(deps.Result)) []deps.Result {
	results := make([]deps.Result, 0, len(libs))
	for _, lib := range libs {
		f.libs = append(f.libs, lib)
		r := deps.Result{Lib: lib, Status: deps.StatusInstalled, Command: "pip install " + lib}
		if lib == "broken" {
			r.Status = deps.StatusFailed
			r.Err = "no matching distribution"
		}
		results = append(results, r)
		observe(r)
	}
	return results
}

type services struct {
	srv       *httptest.Server
	downloads atomic.Int32

	mu        sync.Mutex
	authPaths []string
}

func (s *services) authCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.authPaths...)
}

func (s *services) recordAuth(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authPaths = append(s.authPaths, path)
}

func newServices(t *testing.T, authBody string, archive []byte, downloadStatus int) *services {
	t.Helper()
	s := &services{}
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		s.recordAuth(r.URL.Path)
		_, _ = w.Write([]byte(authBody))
	})
	mux.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		s.recordAuth(r.URL.Path)
		_, _ = w.Write([]byte(authBody))
	})
	mux.HandleFunc("/release.zip", func(w http.ResponseWriter, _ *http.Request) {
		s.downloads.Add(1)
		if downloadStatus != http.StatusOK {
			w.WriteHeader(downloadStatus)
			return
		}
		_, _ = w.Write(archive)
	})
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

type fixture struct {
	manager *Manager
	deps    *fakeDeps
	ic      InstallConfig
}

func newFixture(t *testing.T, s *services) *fixture {
	t.Helper()
	dir := t.TempDir()

	db, err := database.Open(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m, err := NewManager(&config.Config{HTTPTimeout: 5 * time.Second}, db)
	require.NoError(t, err)
	fd := &fakeDeps{}
	m.newDeps = func(_, _ []string) DependencyInstaller { return fd }
	m.newID = func() string { return "run-1" }

	install := filepath.Join(dir, "install")
	return &fixture{
		manager: m,
		deps:    fd,
		ic: InstallConfig{
			SaveFolder:     filepath.Join(dir, "save"),
			ProjectsFolder: filepath.Join(dir, "projects"),
			Username:       "alice",
			Password:       "secret",
			RegisterURL:    s.srv.URL + "/register?username=%username%&password=%password%",
			LoginURL:       s.srv.URL + "/login?username=%username%&password=%password%",
			DownloadURL:    s.srv.URL + "/release.zip",
			InstallDir:     install,
			ScratchDir:     filepath.Join(install, "installation"),
			PackageManager: []string{"python", "-m", "pip", "install"},
		},
	}
}

func drain(ch <-chan progress.Event) []progress.Event {
	var events []progress.Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func releaseArchive(t *testing.T) []byte {
	return releasetest.Zip(t, map[string]string{
		"CrystalStudio-1.0/":                  "",
		"CrystalStudio-1.0/installation.json": `{"libs":["numpy","broken"],"content":["app/","config.json"]}`,
		"CrystalStudio-1.0/app/main.py":       "new",
		"CrystalStudio-1.0/app/util.py":       "util",
		"CrystalStudio-1.0/config.json":       `{"v":2}`,
	})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRunInstallsRelease(t *testing.T) {
	s := newServices(t, `{"state":"success","token":"tok-123"}`, releaseArchive(t), http.StatusOK)
	f := newFixture(t, s)

	writeFile(t, filepath.Join(f.ic.InstallDir, "app", "main.py"), "old")
	writeFile(t, filepath.Join(f.ic.InstallDir, "app", "stale.py"), "stale")
	writeFile(t, filepath.Join(f.ic.InstallDir, "config.json"), `{"v":1}`)
	writeFile(t, filepath.Join(f.ic.InstallDir, "keep.txt"), "untouched")

	runID, ch := f.manager.Run(context.Background(), f.ic)
	assert.Equal(t, "run-1", runID)
	events := drain(ch)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, progress.EventDone, last.Type)
	assert.Equal(t, 100, last.Percent)

	prev := 0
	for _, ev := range events {
		assert.GreaterOrEqual(t, ev.Percent, prev)
		prev = ev.Percent
	}
	assert.Equal(t, "Logging in CrystalStudio account", events[0].Message)
	assert.Len(t, events, len(progress.Milestones(false))+1)

	creds, err := secrets.Load(f.ic.SaveFolder)
	require.NoError(t, err)
	assert.Equal(t, secrets.Credentials{Username: "alice", Token: "tok-123"}, creds)

	main, err := os.ReadFile(filepath.Join(f.ic.InstallDir, "app", "main.py"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(main))
	assert.NoFileExists(t, filepath.Join(f.ic.InstallDir, "app", "stale.py"))
	assert.FileExists(t, filepath.Join(f.ic.InstallDir, "app", "util.py"))
	cfg, err := os.ReadFile(filepath.Join(f.ic.InstallDir, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(cfg))
	assert.FileExists(t, filepath.Join(f.ic.InstallDir, "keep.txt"))

	assert.NoDirExists(t, f.ic.ScratchDir)
	assert.DirExists(t, f.ic.ProjectsFolder)
	assert.Equal(t, []string{"numpy", "broken"}, f.deps.libs)
	assert.Equal(t, []string{"/login"}, s.authCalls())

	run, err := f.manager.History().GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusCompleted, run.Status)

	tracked, ok := f.manager.Tracker().Get(runID)
	require.True(t, ok)
	assert.Equal(t, progress.StateComplete, tracked.State)
}

func TestRunAuthFailureWritesNoSecrets(t *testing.T) {
	s := newServices(t, `{"state":"error","reason":"username taken"}`, releaseArchive(t), http.StatusOK)
	f := newFixture(t, s)
	f.ic.CreateAccount = true

	runID, ch := f.manager.Run(context.Background(), f.ic)
	events := drain(ch)

	require.Len(t, events, 2)
	assert.Equal(t, "Installing: Registering CrystalStudio account", events[0].Message)
	last := events[1]
	assert.Equal(t, progress.EventError, last.Type)
	assert.Equal(t, progress.CodeAuthFailed, last.Code)
	assert.Equal(t, progress.StepAuthenticate, last.Step)
	assert.Contains(t, last.Message, "username taken")

	assert.NoFileExists(t, secrets.Path(f.ic.SaveFolder))
	assert.EqualValues(t, 0, s.downloads.Load())
	assert.Equal(t, []string{"/register"}, s.authCalls())

	run, err := f.manager.History().GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusFailed, run.Status)
	assert.Equal(t, progress.CodeAuthFailed, run.ErrorCode.String)
}

func TestRunDownloadFailure(t *testing.T) {
	s := newServices(t, `{"state":"success","token":"tok"}`, nil, http.StatusNotFound)
	f := newFixture(t, s)

	_, ch := f.manager.Run(context.Background(), f.ic)
	events := drain(ch)

	last := events[len(events)-1]
	assert.Equal(t, progress.EventError, last.Type)
	assert.Equal(t, progress.CodeTransportFailed, last.Code)
	assert.Equal(t, progress.StepDownload, last.Step)
	assert.Equal(t, 40, last.Percent)
	assert.FileExists(t, secrets.Path(f.ic.SaveFolder))
	assert.Empty(t, f.deps.libs)
}

func TestRunInvalidManifest(t *testing.T) {
	archive := releasetest.Zip(t, map[string]string{
		"CrystalStudio-1.0/":            "",
		"CrystalStudio-1.0/app/main.py": "new",
	})
	s := newServices(t, `{"state":"success","token":"tok"}`, archive, http.StatusOK)
	f := newFixture(t, s)

	_, ch := f.manager.Run(context.Background(), f.ic)
	events := drain(ch)

	last := events[len(events)-1]
	assert.Equal(t, progress.CodeManifestInvalid, last.Code)
	assert.Equal(t, progress.StepSafeInstall, last.Step)
	assert.NoDirExists(t, filepath.Join(f.ic.InstallDir, "app"))
}

func TestRunPlacementFailureKeepsEarlierEntries(t *testing.T) {
	archive := releasetest.Zip(t, map[string]string{
		"CrystalStudio-1.0/":                  "",
		"CrystalStudio-1.0/installation.json": `{"libs":[],"content":["app/","missing.txt"]}`,
		"CrystalStudio-1.0/app/main.py":       "new",
	})
	s := newServices(t, `{"state":"success","token":"tok"}`, archive, http.StatusOK)
	f := newFixture(t, s)

	_, ch := f.manager.Run(context.Background(), f.ic)
	events := drain(ch)

	last := events[len(events)-1]
	assert.Equal(t, progress.CodePlacementFailed, last.Code)
	assert.FileExists(t, filepath.Join(f.ic.InstallDir, "app", "main.py"))
}

func TestRunRefusesScratchOverInstallDir(t *testing.T) {
	tests := []struct {
		name    string
		scratch func(ic InstallConfig) string
	}{
		{name: "install dir", scratch: func(ic InstallConfig) string { return ic.InstallDir }},
		{name: "parent of install dir", scratch: func(ic InstallConfig) string { return filepath.Dir(ic.InstallDir) }},
		{name: "save folder", scratch: func(ic InstallConfig) string { return ic.SaveFolder }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServices(t, `{"state":"success","token":"tok"}`, releaseArchive(t), http.StatusOK)
			f := newFixture(t, s)
			f.ic.ScratchDir = tt.scratch(f.ic)
			notes := filepath.Join(f.ic.InstallDir, "user-notes.txt")
			writeFile(t, notes, "keep me")

			_, ch := f.manager.Run(context.Background(), f.ic)
			events := drain(ch)

			last := events[len(events)-1]
			assert.Equal(t, progress.EventError, last.Type)
			assert.Equal(t, progress.CodeExtractFailed, last.Code)
			assert.Equal(t, progress.StepPrepare, last.Step)
			assert.FileExists(t, notes)
			assert.FileExists(t, secrets.Path(f.ic.SaveFolder))
			assert.EqualValues(t, 0, s.downloads.Load())
		})
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	s := newServices(t, `{"state":"success","token":"tok"}`, releaseArchive(t), http.StatusOK)
	f := newFixture(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ch := f.manager.Run(ctx, f.ic)
	events := drain(ch)

	require.Len(t, events, 1)
	assert.Equal(t, progress.CodeCancelled, events[0].Code)
	assert.Empty(t, s.authCalls())
}

func TestRunRecordsLogs(t *testing.T) {
	s := newServices(t, `{"state":"success","token":"tok"}`, releaseArchive(t), http.StatusOK)
	f := newFixture(t, s)

	runID, ch := f.manager.Run(context.Background(), f.ic)
	drain(ch)

	logs, err := history.GetRunLogs(context.Background(), f.manager.db, runID)
	require.NoError(t, err)

	var warnings int
	for _, l := range logs {
		if l.Level == database.LogLevelWarning {
			warnings++
		}
	}
	assert.Equal(t, 1, warnings, "only the broken library should warn")
}

func TestNewInstallConfig(t *testing.T) {
	cfg := &config.Config{
		SaveFolder:     "/save",
		ProjectsFolder: "/projects",
		LoginURL:       "https://x/login?u=%username%",
		RegisterURL:    "https://x/register?u=%username%",
		DownloadURL:    "https://x/release.zip",
		InstallDir:     "/install",
		ScratchDir:     "/install/installation",
		PackageManager: []string{"pip", "install"},
		StepDelay:      time.Millisecond,
	}

	ic := NewInstallConfig(cfg)
	assert.Equal(t, "/save", ic.SaveFolder)
	assert.Equal(t, DefaultAddons, ic.Options.Addons)

	cfg.PackageManager[0] = "changed"
	assert.Equal(t, "pip", ic.PackageManager[0])

	assert.Equal(t, cfg.LoginURL, ic.AuthTemplate())
	ic.CreateAccount = true
	assert.Equal(t, cfg.RegisterURL, ic.AuthTemplate())
	assert.Equal(t, "register", ic.Mode().String())
}
