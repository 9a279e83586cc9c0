// Package deps installs the libraries a release declares.
package deps

import (
	"context"
	"strings"

	"crystalsetup/internal/logging"
)

// Result describes one package manager invocation.
type Result struct {
	Lib     string  `json:"lib"`
	Status  Status  `json:"status"`
	Command string  `json:"command"`
	Summary Summary `json:"-"`
	Err     string  `json:"error,omitempty"`
}

// Installer runs the configured package manager sequentially.
type Installer struct {
	command     []string
	upgradeArgs []string
	execCommand execCommandFunc
}

// NewInstaller creates an installer for the argv prefix command, e.g.
// ["python", "-m", "pip", "install"]. upgradeArgs, when set, are run once
// before any library.
func NewInstaller(command, upgradeArgs []string) *Installer {
	return &Installer{
		command:     command,
		upgradeArgs: upgradeArgs,
		execCommand: defaultExecCommand,
	}
}

// Install upgrades the package manager, then installs each library in
// order. Failures are logged and never stop the loop. observe, if set,
// sees every result as it completes.
func (i *Installer) Install(ctx context.Context, libs []string, observe func(Result)) []Result {
	results := make([]Result, 0, len(libs)+1)

	if len(i.upgradeArgs) > 0 {
		r := i.run(ctx, "", i.upgradeArgs)
		results = append(results, r)
		if observe != nil {
			observe(r)
		}
	}

	for _, lib := range libs {
		r := i.run(ctx, lib, []string{lib})
		results = append(results, r)
		if observe != nil {
			observe(r)
		}
	}
	return results
}

func (i *Installer) run(ctx context.Context, lib string, extra []string) Result {
	args := append(append([]string{}, i.command[1:]...), extra...)
	r := Result{Lib: lib, Command: strings.Join(append([]string{i.command[0]}, args...), " ")}

	output, err := i.execCommand(ctx, i.command[0], args...).CombinedOutput()
	r.Summary = ParseOutput(string(output))
	r.Status = statusOf(r.Summary, err)

	if r.Status == StatusFailed {
		if err != nil {
			r.Err = err.Error()
		} else {
			r.Err = strings.Join(r.Summary.Errors, "; ")
		}
		logging.Warning("%s failed, continuing: %s", r.Command, r.Err)
	} else {
		logging.Info("%s: %s", r.Command, r.Status)
	}
	return r
}
