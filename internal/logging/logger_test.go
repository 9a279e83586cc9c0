package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelsReachOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetConsole(true) })

	Info("downloading %s", "release.zip")
	Warning("pip exited with %d", 1)
	Error("placement failed: %v", "boom")

	out := buf.String()
	assert.Contains(t, out, "level=info msg=\"downloading release.zip\"")
	assert.Contains(t, out, "level=warning msg=\"pip exited with 1\"")
	assert.Contains(t, out, "level=error msg=\"placement failed: boom\"")
}

func TestInitializeWritesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir))
	t.Cleanup(func() { _ = Close() })

	SetConsole(false)
	t.Cleanup(func() { SetConsole(true) })
	Info("file only entry")

	content, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(content), "file only entry"))

	require.NoError(t, RotateLogs())
}
