package deps

import (
	"regexp"
	"strings"
)

// Status is the outcome of installing one library.
type Status string

const (
	StatusInstalled Status = "installed"
	StatusSatisfied Status = "satisfied"
	StatusFailed    Status = "failed"
	StatusUnknown   Status = "unknown"
)

// Output patterns printed by pip.
var (
	installedPattern = regexp.MustCompile(`^Successfully installed (.+)$`)
	satisfiedPattern = regexp.MustCompile(`^Requirement already satisfied: ([^\s]+)`)
	errorPattern     = regexp.MustCompile(`^ERROR: (.+)$`)
)

// Summary is what could be read from a package manager run.
type Summary struct {
	Installed []string
	Satisfied []string
	Errors    []string
}

// ParseOutput scans package manager output line by line.
func ParseOutput(output string) Summary {
	var s Summary
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := installedPattern.FindStringSubmatch(line); m != nil {
			s.Installed = append(s.Installed, strings.Fields(m[1])...)
			continue
		}
		if m := satisfiedPattern.FindStringSubmatch(line); m != nil {
			s.Satisfied = append(s.Satisfied, m[1])
			continue
		}
		if m := errorPattern.FindStringSubmatch(line); m != nil {
			s.Errors = append(s.Errors, m[1])
		}
	}
	return s
}

// statusOf folds a summary and the command error into one status.
func statusOf(s Summary, runErr error) Status {
	switch {
	case runErr != nil || len(s.Errors) > 0:
		return StatusFailed
	case len(s.Installed) > 0:
		return StatusInstalled
	case len(s.Satisfied) > 0:
		return StatusSatisfied
	}
	return StatusUnknown
}
