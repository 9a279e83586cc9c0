package deps

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	output string
	err    error
}

func (f fakeRunner) CombinedOutput() ([]byte, error) {
	return []byte(f.output), f.err
}

type recorder struct {
	calls   []string
	outputs map[string]fakeRunner
}

func (r *recorder) exec(_ context.Context, name string, args ...string) commandRunner {
	line := strings.Join(append([]string{name}, args...), " ")
	r.calls = append(r.calls, line)
	if out, ok := r.outputs[line]; ok {
		return out
	}
	return fakeRunner{}
}

func TestInstallRunsSequentiallyAndIgnoresFailures(t *testing.T) {
	rec := &recorder{outputs: map[string]fakeRunner{
		"python -m pip install --upgrade pip": {output: "Requirement already satisfied: pip in /usr/lib (24.0)"},
		"python -m pip install requests":      {output: "Collecting requests\nSuccessfully installed certifi-2024.2.2 requests-2.31.0"},
		"python -m pip install nosuchlib":     {output: "ERROR: No matching distribution found for nosuchlib", err: errors.New("exit status 1")},
		"python -m pip install pygame":        {output: "Successfully installed pygame-2.5.2"},
	}}

	inst := NewInstaller([]string{"python", "-m", "pip", "install"}, []string{"--upgrade", "pip"})
	inst.execCommand = rec.exec

	var observed []string
	results := inst.Install(context.Background(), []string{"requests", "nosuchlib", "pygame"}, func(r Result) {
		observed = append(observed, r.Lib)
	})

	assert.Equal(t, []string{
		"python -m pip install --upgrade pip",
		"python -m pip install requests",
		"python -m pip install nosuchlib",
		"python -m pip install pygame",
	}, rec.calls)
	assert.Equal(t, []string{"", "requests", "nosuchlib", "pygame"}, observed)

	require.Len(t, results, 4)
	assert.Equal(t, StatusSatisfied, results[0].Status)
	assert.Equal(t, StatusInstalled, results[1].Status)
	assert.Equal(t, []string{"certifi-2024.2.2", "requests-2.31.0"}, results[1].Summary.Installed)
	assert.Equal(t, StatusFailed, results[2].Status)
	assert.Equal(t, "exit status 1", results[2].Err)
	assert.Equal(t, StatusInstalled, results[3].Status)
}

func TestInstallWithoutUpgrade(t *testing.T) {
	rec := &recorder{}
	inst := NewInstaller([]string{"pip3", "install"}, nil)
	inst.execCommand = rec.exec

	results := inst.Install(context.Background(), nil, nil)
	assert.Empty(t, results)
	assert.Empty(t, rec.calls)
}

func TestParseOutput(t *testing.T) {
	s := ParseOutput("Requirement already satisfied: six in ./lib\nERROR: could not build wheels\n\nSuccessfully installed a-1 b-2\n")
	assert.Equal(t, []string{"six"}, s.Satisfied)
	assert.Equal(t, []string{"could not build wheels"}, s.Errors)
	assert.Equal(t, []string{"a-1", "b-2"}, s.Installed)

	assert.Equal(t, StatusFailed, statusOf(s, nil))
	assert.Equal(t, StatusUnknown, statusOf(Summary{}, nil))
	assert.Equal(t, StatusFailed, statusOf(Summary{}, errors.New("not found")))
}
