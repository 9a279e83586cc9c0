package placement

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestPlaceReplacesDirectoryRecursively(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()

	writeFile(t, filepath.Join(src, "app", "main.py"), "new main")
	writeFile(t, filepath.Join(src, "app", "lib", "util.py"), "new util")

	writeFile(t, filepath.Join(dest, "app", "main.py"), "old main")
	writeFile(t, filepath.Join(dest, "app", "stale.py"), "stale")

	placed, err := Place(src, dest, []string{"app/"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"app/"}, placed)

	assert.Equal(t, "new main", readFile(t, filepath.Join(dest, "app", "main.py")))
	assert.Equal(t, "new util", readFile(t, filepath.Join(dest, "app", "lib", "util.py")))
	_, err = os.Stat(filepath.Join(dest, "app", "stale.py"))
	assert.True(t, os.IsNotExist(err), "old directory contents must be gone")

	_, err = os.Stat(filepath.Join(src, "app"))
	assert.True(t, os.IsNotExist(err), "content is moved, not copied")
}

func TestPlaceReplacesFileIndividually(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()

	writeFile(t, filepath.Join(src, "config", "settings.json"), `{"v":2}`)
	writeFile(t, filepath.Join(dest, "config", "settings.json"), `{"v":1}`)
	writeFile(t, filepath.Join(dest, "config", "user.json"), `keep`)

	_, err := Place(src, dest, []string{"config/settings.json"}, nil)
	require.NoError(t, err)

	assert.Equal(t, `{"v":2}`, readFile(t, filepath.Join(dest, "config", "settings.json")))
	assert.Equal(t, "keep", readFile(t, filepath.Join(dest, "config", "user.json")), "siblings survive a file replacement")
}

func TestPlaceIntoEmptyDestination(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "fresh")

	writeFile(t, filepath.Join(src, "main.py"), "print()")

	var observed []string
	_, err := Place(src, dest, []string{"main.py"}, func(e string) { observed = append(observed, e) })
	require.NoError(t, err)
	assert.Equal(t, []string{"main.py"}, observed)
	assert.Equal(t, "print()", readFile(t, filepath.Join(dest, "main.py")))
}

func TestPlaceStopsAtMissingEntry(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()

	writeFile(t, filepath.Join(src, "a.txt"), "a")
	writeFile(t, filepath.Join(src, "c.txt"), "c")

	placed, err := Place(src, dest, []string{"a.txt", "b/", "c.txt"}, nil)
	require.Error(t, err)

	var pErr *Error
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, "b/", pErr.Entry)
	assert.Equal(t, []string{"a.txt"}, placed)

	assert.Equal(t, "a", readFile(t, filepath.Join(dest, "a.txt")), "earlier entries stay placed")
	_, err = os.Stat(filepath.Join(dest, "c.txt"))
	assert.True(t, os.IsNotExist(err), "later entries are not attempted")
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "copy")

	writeFile(t, filepath.Join(src, "x", "y.txt"), "y")
	require.NoError(t, copyTree(src, dest))
	assert.Equal(t, "y", readFile(t, filepath.Join(dest, "x", "y.txt")))
}
