// Package version provides build and installer version information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// InstallerVersion is compared against the "ver" field of the published
// installer descriptor. Bump it with every installer release.
const InstallerVersion = 1

// These variables are set at build time using -ldflags.
var (
	// Version is the git tag version number.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the date of the build.
	BuildDate = "unknown"
)

// Info holds all the version information.
type Info struct {
	Version          string `json:"version"`
	InstallerVersion int    `json:"installerVersion"`
	Commit           string `json:"commit"`
	BuildDate        string `json:"buildDate"`
	GoVersion        string `json:"goVersion"`
	Platform         string `json:"platform"`
}

// Get returns the version information.
func Get() Info {
	info := Info{
		Version:          Version,
		InstallerVersion: InstallerVersion,
		Commit:           Commit,
		BuildDate:        BuildDate,
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = bi.GoVersion

		for _, setting := range bi.Settings {
			switch setting.Key {
			case "GOOS":
				info.Platform = setting.Value
			case "GOARCH":
				if info.Platform != "" {
					info.Platform += "/" + setting.Value
				}
			case "vcs.revision":
				if info.Commit == "unknown" {
					info.Commit = setting.Value
				}
			}
		}
	}

	if info.Platform == "" {
		info.Platform = fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
	}
	if info.GoVersion == "" {
		info.GoVersion = runtime.Version()
	}

	return info
}

// String renders the multi-line banner printed by the version command.
func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "crystal-setup version %s (installer %d)\n", i.Version, i.InstallerVersion)
	fmt.Fprintf(&b, "  commit: %s\n", i.Commit)
	fmt.Fprintf(&b, "  built: %s (%s)\n", i.BuildDate, GetVersionAge())
	fmt.Fprintf(&b, "  go: %s\n", i.GoVersion)
	fmt.Fprintf(&b, "  platform: %s\n", i.Platform)
	return b.String()
}

// GetVersionAge returns a human-readable age of the build.
func GetVersionAge() string {
	return ageOf(BuildDate, time.Now())
}

func ageOf(buildDate string, now time.Time) string {
	if buildDate == "unknown" || buildDate == "" {
		return "unknown"
	}

	t, err := time.Parse(time.RFC3339, buildDate)
	if err != nil {
		return "unknown"
	}

	duration := now.Sub(t)
	switch {
	case duration < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(duration.Minutes()))
	case duration < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(duration.Hours()))
	case duration < 30*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(duration.Hours()/24))
	case duration < 365*24*time.Hour:
		return fmt.Sprintf("%d months ago", int(duration.Hours()/(24*30)))
	}
	return fmt.Sprintf("%d years ago", int(duration.Hours()/(24*365)))
}
