// Package installer runs the CrystalStudio install procedure on a single worker goroutine.
package installer

import (
	"context"
	"time"

	"crystalsetup/internal/auth"
	"crystalsetup/internal/config"
	"crystalsetup/internal/deps"
)

// Addons offered on the install options page.
const (
	AddonDiscord = "Discord Integration"
	AddonGame2D  = "Game2D Generator"
)

// DefaultAddons are checked unless the user opts out.
var DefaultAddons = []string{AddonDiscord, AddonGame2D}

// Options are the choices from the install options page.
type Options struct {
	DesktopShortcut bool     `json:"desktop_shortcut"`
	Addons          []string `json:"addons"`
}

// InstallConfig is everything one run needs. It is copied into the worker
// when the run starts and never changed afterwards.
type InstallConfig struct {
	CreateAccount  bool
	SaveFolder     string
	ProjectsFolder string
	Username       string
	Password       string

	CheckURL    string
	RegisterURL string
	LoginURL    string
	DownloadURL string

	ScratchDir string
	InstallDir string

	PackageManager []string
	UpgradeArgs    []string
	StepDelay      time.Duration

	Options Options
}

// Mode returns the authentication mode of the run.
func (ic InstallConfig) Mode() auth.Mode {
	if ic.CreateAccount {
		return auth.ModeRegister
	}
	return auth.ModeLogin
}

// AuthTemplate returns the URL template used to authenticate.
func (ic InstallConfig) AuthTemplate() string {
	if ic.CreateAccount {
		return ic.RegisterURL
	}
	return ic.LoginURL
}

// NewInstallConfig fills the non-interactive fields from cfg. Callers set
// the account fields and options.
func NewInstallConfig(cfg *config.Config) InstallConfig {
	return InstallConfig{
		SaveFolder:     cfg.SaveFolder,
		ProjectsFolder: cfg.ProjectsFolder,
		CheckURL:       cfg.CheckURL,
		RegisterURL:    cfg.RegisterURL,
		LoginURL:       cfg.LoginURL,
		DownloadURL:    cfg.DownloadURL,
		ScratchDir:     cfg.ScratchDir,
		InstallDir:     cfg.InstallDir,
		PackageManager: append([]string(nil), cfg.PackageManager...),
		UpgradeArgs:    append([]string(nil), cfg.UpgradeArgs...),
		StepDelay:      cfg.StepDelay,
		Options: Options{
			Addons: append([]string(nil), DefaultAddons...),
		},
	}
}

// clone detaches the slices so the caller cannot mutate a running config.
func (ic InstallConfig) clone() InstallConfig {
	ic.PackageManager = append([]string(nil), ic.PackageManager...)
	ic.UpgradeArgs = append([]string(nil), ic.UpgradeArgs...)
	ic.Options.Addons = append([]string(nil), ic.Options.Addons...)
	return ic
}

// Authenticator exchanges credentials for a token.
type Authenticator interface {
	Authenticate(ctx context.Context, mode auth.Mode, tmpl, username, password string) (string, error)
}

// Fetcher downloads the release archive into a scratch directory.
type Fetcher interface {
	Download(ctx context.Context, url, scratchDir string) (string, error)
}

// DependencyInstaller installs the libraries listed in a manifest.
type DependencyInstaller interface {
	Install(ctx context.Context, libs []string, observe func(deps.Result)) []deps.Result
}
