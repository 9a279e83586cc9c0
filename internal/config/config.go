package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"crystalsetup/internal/version"
)

// Config holds all configuration settings for the installer
type Config struct {
	// SaveFolder receives secrets.json and the install history
	SaveFolder string `toml:"save_folder"`

	// ProjectsFolder is where CrystalStudio keeps user projects
	ProjectsFolder string `toml:"projects_folder"`

	// InstallDir is the destination for placed release content
	InstallDir string `toml:"install_dir"`

	// ScratchDir is created and removed once per run; relative paths resolve against InstallDir
	ScratchDir string `toml:"scratch_dir"`

	// DatabasePath is the path to the SQLite install history
	DatabasePath string `toml:"database_path"`

	// LogDir receives the rotating log file
	LogDir string `toml:"log_dir"`

	CheckURL        string `toml:"check_url"`
	RegisterURL     string `toml:"register_url"`
	LoginURL        string `toml:"login_url"`
	UserURL         string `toml:"user_url"`
	InstallerURL    string `toml:"installer_url"`
	DownloadURL     string `toml:"download_url"`
	ConnectivityURL string `toml:"connectivity_url"`

	// EscapeCredentials query-escapes the username and password before template substitution
	EscapeCredentials bool `toml:"escape_credentials"`

	PackageManager []string `toml:"package_manager"`
	UpgradeArgs    []string `toml:"upgrade_args"`

	StepDelay   time.Duration `toml:"step_delay"`
	HTTPTimeout time.Duration `toml:"http_timeout"`

	// DevMode unlocks endpoint and version overrides on the command line
	DevMode bool `toml:"dev_mode"`

	InstallerVersion int `toml:"installer_version"`
}

// defaultConfig returns the default configuration based on the platform
func defaultConfig() *Config {
	save := DefaultSaveFolder()
	return &Config{
		SaveFolder:       save,
		ProjectsFolder:   DefaultProjectsFolder(),
		InstallDir:       ".",
		ScratchDir:       DefaultScratchDir,
		DatabasePath:     filepath.Join(save, DefaultDatabaseName),
		LogDir:           filepath.Join(save, "logs"),
		CheckURL:         DefaultCheckURL,
		RegisterURL:      DefaultRegisterURL,
		LoginURL:         DefaultLoginURL,
		UserURL:          DefaultUserURL,
		InstallerURL:     DefaultInstallerURL,
		DownloadURL:      DefaultDownloadURL,
		ConnectivityURL:  DefaultConnectivityURL,
		PackageManager:   append([]string(nil), DefaultPackageManager...),
		UpgradeArgs:      append([]string(nil), DefaultUpgradeArgs...),
		StepDelay:        DefaultStepDelay,
		HTTPTimeout:      DefaultHTTPTimeout,
		InstallerVersion: version.InstallerVersion,
	}
}

// DefaultSaveFolder returns the per-platform folder for secrets and history.
func DefaultSaveFolder() string {
	home, _ := os.UserHomeDir()
	configDir, _ := os.UserConfigDir()
	return saveFolderFor(runtime.GOOS, home, os.Getenv("APPDATA"), configDir)
}

func saveFolderFor(goos, home, appData, configDir string) string {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", vendorDir, productDir)
	case "windows":
		if appData == "" {
			appData = configDir
		}
		return filepath.Join(appData, vendorDir, productDir)
	default:
		if configDir == "" {
			configDir = filepath.Join(home, ".config")
		}
		return filepath.Join(configDir, vendorDir, productDir)
	}
}

// DefaultProjectsFolder returns ~/CrystalProjects.
func DefaultProjectsFolder() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "CrystalProjects")
}

// Load loads the configuration from file and environment variables
func Load() (*Config, error) {
	config := defaultConfig()

	configPath := "config.toml"
	if p := os.Getenv("CRYSTAL_CONFIG"); p != "" {
		configPath = p
	}
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if err := applyEnv(config); err != nil {
		return nil, err
	}

	if err := config.resolvePaths(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func applyEnv(config *Config) error {
	stringVars := map[string]*string{
		"CRYSTAL_SAVE_FOLDER":     &config.SaveFolder,
		"CRYSTAL_PROJECTS_FOLDER": &config.ProjectsFolder,
		"CRYSTAL_INSTALL_DIR":     &config.InstallDir,
		"CRYSTAL_SCRATCH_DIR":     &config.ScratchDir,
		"CRYSTAL_DATABASE_PATH":   &config.DatabasePath,
		"CRYSTAL_LOG_DIR":         &config.LogDir,
		"CRYSTAL_CHECK_URL":       &config.CheckURL,
		"CRYSTAL_REGISTER_URL":    &config.RegisterURL,
		"CRYSTAL_LOGIN_URL":       &config.LoginURL,
		"CRYSTAL_USER_URL":        &config.UserURL,
		"CRYSTAL_INSTALLER_URL":   &config.InstallerURL,
		"CRYSTAL_DOWNLOAD_URL":    &config.DownloadURL,
	}
	for key, target := range stringVars {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}

	if v := os.Getenv("CRYSTAL_STEP_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CRYSTAL_STEP_DELAY %q: %w", v, err)
		}
		config.StepDelay = d
	}

	bools := map[string]*bool{
		"CRYSTAL_DEV_MODE":           &config.DevMode,
		"CRYSTAL_ESCAPE_CREDENTIALS": &config.EscapeCredentials,
	}
	for key, target := range bools {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*target = b
		}
	}

	return nil
}

func (c *Config) resolvePaths() error {
	for _, p := range []*string{&c.SaveFolder, &c.ProjectsFolder, &c.InstallDir, &c.DatabasePath, &c.LogDir} {
		if *p == "" || filepath.IsAbs(*p) {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("failed to get absolute path for %s: %w", *p, err)
		}
		*p = abs
	}

	if c.ScratchDir != "" && !filepath.IsAbs(c.ScratchDir) {
		c.ScratchDir = filepath.Join(c.InstallDir, c.ScratchDir)
	}
	return nil
}

// Validate reports settings the installer cannot run with.
func (c *Config) Validate() error {
	if c.DownloadURL == "" {
		return fmt.Errorf("download_url must be set")
	}
	if len(c.PackageManager) == 0 {
		return fmt.Errorf("package_manager must name a command")
	}
	if c.ScratchDir == "" {
		return fmt.Errorf("scratch_dir must be set")
	}
	scratch := c.ScratchDir
	if !filepath.IsAbs(scratch) {
		scratch = filepath.Join(c.InstallDir, scratch)
	}
	if err := CheckScratchDir(scratch, c.InstallDir, c.SaveFolder, c.ProjectsFolder); err != nil {
		return fmt.Errorf("scratch_dir: %w", err)
	}
	if c.StepDelay < 0 {
		return fmt.Errorf("step_delay must not be negative")
	}
	return nil
}

// CheckScratchDir returns an error when scratch is one of the protected
// folders or contains one. The scratch directory is removed on every run.
func CheckScratchDir(scratch string, protected ...string) error {
	abs, err := filepath.Abs(scratch)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for %s: %w", scratch, err)
	}
	for _, p := range protected {
		if p == "" {
			continue
		}
		target, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to get absolute path for %s: %w", p, err)
		}
		rel, err := filepath.Rel(abs, target)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return fmt.Errorf("%s would remove %s", abs, target)
		}
	}
	return nil
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("SaveFolder: %s", c.SaveFolder))
	parts = append(parts, fmt.Sprintf("ProjectsFolder: %s", c.ProjectsFolder))
	parts = append(parts, fmt.Sprintf("InstallDir: %s", c.InstallDir))
	parts = append(parts, fmt.Sprintf("ScratchDir: %s", c.ScratchDir))
	parts = append(parts, fmt.Sprintf("DatabasePath: %s", c.DatabasePath))
	parts = append(parts, fmt.Sprintf("DownloadURL: %s", c.DownloadURL))
	parts = append(parts, fmt.Sprintf("DevMode: %t", c.DevMode))
	return strings.Join(parts, ", ")
}
