package deps

import (
	"context"
	"os/exec"
)

type execCommandFunc func(ctx context.Context, name string, args ...string) commandRunner

type commandRunner interface {
	CombinedOutput() ([]byte, error)
}

type execCmd struct {
	cmd *exec.Cmd
}

func (e *execCmd) CombinedOutput() ([]byte, error) {
	return e.cmd.CombinedOutput()
}

func defaultExecCommand(ctx context.Context, name string, args ...string) commandRunner {
	return &execCmd{cmd: exec.CommandContext(ctx, name, args...)} //nolint:gosec // command comes from configuration, libs from the release manifest
}
