// Package systemcheck reports whether this machine is ready for a CrystalStudio install.
package systemcheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"crystalsetup/internal/config"
)

// Status represents the health status of a system check.
type Status string

const (
	// StatusOK indicates the check passed successfully.
	StatusOK Status = "ok"
	// StatusWarning is advisory; the install may still work.
	StatusWarning Status = "warning"
	// StatusError indicates the check failed.
	StatusError Status = "error"
)

// User-facing messages shared with the wizard.
const (
	OfflineMessage             = "The installer needs to be connected to the internet to install"
	UnsupportedPlatformMessage = "Unsupported operating system! If you are using Linux, try to clone the GitHub repository instead of using the installer"
)

// MinFreeBytes is the free space below which the disk check warns.
const MinFreeBytes = 1 << 30

// MinAvailableMemory is the available memory below which the memory check warns.
const MinAvailableMemory = 2 << 30

// CheckResult represents the result of a single system check.
type CheckResult struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Status      Status   `json:"status"`
	Message     string   `json:"message"`
	Version     string   `json:"version,omitempty"`
	Details     string   `json:"details,omitempty"`
	Remediation []string `json:"remediation,omitempty"`
}

// Runner executes system health checks.
type Runner struct {
	cfg        *config.Config
	goos       string
	httpClient *http.Client
	diskUsage  func(ctx context.Context, path string) (*disk.UsageStat, error)
	hostInfo   func(ctx context.Context) (*host.InfoStat, error)
	memory     func(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

// NewRunner creates a new system check runner with the provided configuration.
func NewRunner(cfg *config.Config) *Runner {
	return &Runner{
		cfg:        cfg,
		goos:       runtime.GOOS,
		httpClient: &http.Client{Timeout: config.ConnectivityTimeout},
		diskUsage:  disk.UsageWithContext,
		hostInfo:   host.InfoWithContext,
		memory:     mem.VirtualMemoryWithContext,
	}
}

// Run executes all system checks and returns the results.
func (r *Runner) Run(ctx context.Context) []CheckResult {
	return []CheckResult{
		r.CheckConnectivity(ctx),
		r.CheckPlatform(ctx),
		r.PrepareFolders(),
		r.checkDiskSpace(ctx),
		r.checkMemory(ctx),
		r.checkPackageManager(ctx),
	}
}

// Failed reports whether any result is an error.
func Failed(results []CheckResult) bool {
	for _, res := range results {
		if res.Status == StatusError {
			return true
		}
	}
	return false
}

// PlatformSupported reports whether goos has a packaged CrystalStudio release.
func PlatformSupported(goos string) bool {
	return goos == "darwin" || goos == "windows"
}

// CheckConnectivity performs a short GET against the connectivity URL.
func (r *Runner) CheckConnectivity(ctx context.Context) CheckResult {
	result := CheckResult{ID: "connectivity", Name: "Internet connection"}

	err := r.ping(ctx)
	if err != nil {
		result.Status = StatusError
		result.Message = OfflineMessage
		result.Details = err.Error()
		result.Remediation = []string{
			"Check your network connection",
			fmt.Sprintf("Make sure %s is reachable", r.cfg.ConnectivityURL),
		}
		return result
	}

	result.Status = StatusOK
	result.Message = "Connected"
	return result
}

func (r *Runner) ping(ctx context.Context) error {
	if r.cfg.ConnectivityURL == "" {
		return errors.New("no connectivity url configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.ConnectivityURL, nil)
	if err != nil {
		return err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

// CheckPlatform warns on operating systems without a packaged release.
func (r *Runner) CheckPlatform(ctx context.Context) CheckResult {
	result := CheckResult{ID: "platform", Name: "Operating system", Status: StatusOK, Message: "Supported operating system"}

	if info, err := r.hostInfo(ctx); err == nil && info != nil {
		result.Version = strings.TrimSpace(fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion))
		result.Details = fmt.Sprintf("%s/%s kernel %s", info.OS, info.KernelArch, info.KernelVersion)
	}

	if !PlatformSupported(r.goos) {
		result.Status = StatusWarning
		result.Message = UnsupportedPlatformMessage
	}
	return result
}

// PrepareFolders creates the save and projects folders.
func (r *Runner) PrepareFolders() CheckResult {
	paths := []string{r.cfg.SaveFolder, r.cfg.ProjectsFolder}

	seen := make(map[string]struct{})
	created := make([]string, 0, len(paths))

	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, exists := seen[p]; exists {
			continue
		}

		if err := os.MkdirAll(p, 0o755); err != nil { //nolint:gosec // Directory permissions appropriate
			return CheckResult{
				ID:          "directories",
				Name:        "Prepare folders",
				Status:      StatusError,
				Message:     fmt.Sprintf("Failed to prepare %s", p),
				Details:     err.Error(),
				Remediation: directoryRemediation(r.goos, p),
			}
		}
		seen[p] = struct{}{}
		created = append(created, p)
	}

	return CheckResult{
		ID:      "directories",
		Name:    "Prepare folders",
		Status:  StatusOK,
		Message: "Save and project folders are ready",
		Details: strings.Join(created, "\n"),
	}
}

func (r *Runner) checkDiskSpace(ctx context.Context) CheckResult {
	result := CheckResult{ID: "disk", Name: "Free disk space"}

	path := existingParent(r.cfg.InstallDir)
	usage, err := r.diskUsage(ctx, path)
	if err != nil {
		result.Status = StatusWarning
		result.Message = "Could not determine free disk space"
		result.Details = err.Error()
		return result
	}

	result.Details = fmt.Sprintf("%s: %s free of %s", path, formatBytes(usage.Free), formatBytes(usage.Total))
	if usage.Free < MinFreeBytes {
		result.Status = StatusWarning
		result.Message = "Less than 1 GB free where CrystalStudio will be installed"
		result.Remediation = []string{"Free up disk space or choose another install directory"}
		return result
	}

	result.Status = StatusOK
	result.Message = formatBytes(usage.Free) + " available"
	return result
}

func (r *Runner) checkMemory(ctx context.Context) CheckResult {
	result := CheckResult{ID: "memory", Name: "Memory"}

	vm, err := r.memory(ctx)
	if err != nil {
		result.Status = StatusWarning
		result.Message = "Could not determine available memory"
		result.Details = err.Error()
		return result
	}

	result.Details = fmt.Sprintf("%s available of %s (%.0f%% used)", formatBytes(vm.Available), formatBytes(vm.Total), vm.UsedPercent)
	if vm.Available < MinAvailableMemory {
		result.Status = StatusWarning
		result.Message = "Less than 2 GB of memory available, CrystalStudio may run slowly"
		result.Remediation = []string{"Close other applications before starting CrystalStudio"}
		return result
	}

	result.Status = StatusOK
	result.Message = formatBytes(vm.Available) + " available"
	return result
}

func (r *Runner) checkPackageManager(ctx context.Context) CheckResult {
	result := CheckResult{ID: "package_manager", Name: "Package manager"}
	if len(r.cfg.PackageManager) == 0 {
		result.Status = StatusWarning
		result.Message = "No package manager configured, libraries will be skipped"
		return result
	}

	binary := r.cfg.PackageManager[0]
	version, err := commandOutput(ctx, binary, "--version")
	if err != nil {
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("%s not available, library installation will fail", binary)
		result.Details = err.Error()
		result.Remediation = pythonRemediation(r.goos)
		return result
	}

	result.Status = StatusOK
	result.Message = binary + " detected"
	result.Version = version
	return result
}

// existingParent walks up from p until it finds a path that exists.
func existingParent(p string) string {
	if p == "" {
		p = "."
	}
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func commandOutput(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(output)), nil
}

func directoryRemediation(goos, path string) []string {
	if goos == "windows" {
		return []string{
			fmt.Sprintf("Create the folder manually: mkdir \"%s\"", path),
			"Choose a folder inside your user profile",
		}
	}
	return []string{
		fmt.Sprintf("Create the directory: mkdir -p %s", path),
		fmt.Sprintf("Set ownership: sudo chown $USER %s", path),
	}
}

func pythonRemediation(goos string) []string {
	switch goos {
	case "darwin":
		return []string{
			"Install Python 3 from https://www.python.org/downloads/macos/",
			"Or install via Homebrew: brew install python",
		}
	case "windows":
		return []string{
			"Install Python 3 from https://www.python.org/downloads/windows/",
			"Enable \"Add python.exe to PATH\" during setup",
		}
	default:
		return []string{
			"Install Python 3 with your distribution's package manager",
		}
	}
}
