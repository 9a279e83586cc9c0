package release

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crystalsetup/internal/release/releasetest"
)

func TestDownloadAndExtract(t *testing.T) {
	archive := releasetest.Zip(t, map[string]string{
		"empty-installation-test-3/":                  "",
		"empty-installation-test-3/installation.json": `{"libs":["requests"],"content":["app/","main.py"]}`,
		"empty-installation-test-3/app/run.py":        "print('hi')",
		"empty-installation-test-3/main.py":           "import app",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	scratch := filepath.Join(t.TempDir(), "installation")
	f := NewFetcher(5 * time.Second)

	zipPath, err := f.Download(context.Background(), srv.URL+"/release.zip", scratch)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(scratch, ArchiveName), zipPath)

	root, err := Extract(zipPath, scratch)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(scratch, "empty-installation-test-3"), root)

	m, err := LoadManifest(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"requests"}, m.Libs)
	assert.Equal(t, []string{"app/", "main.py"}, m.Content)

	content, err := os.ReadFile(filepath.Join(root, "app", "run.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", string(content))
}

func TestDownloadStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	scratch := t.TempDir()
	_, err := NewFetcher(5*time.Second).Download(context.Background(), srv.URL, scratch)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(scratch, ArchiveName))
	assert.True(t, os.IsNotExist(statErr), "no partial archive on failure")
}

func TestExtractFlatArchive(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, ArchiveName)
	require.NoError(t, os.WriteFile(zipPath, releasetest.Zip(t, map[string]string{
		"installation.json": `{"libs":[],"content":["a.txt"]}`,
		"a.txt":             "a",
	}), 0o644))

	root, err := Extract(zipPath, dir)
	require.NoError(t, err)
	assert.Equal(t, dir, root)
}

func TestExtractRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, ArchiveName)
	require.NoError(t, os.WriteFile(zipPath, releasetest.Zip(t, map[string]string{
		"../evil.txt": "x",
	}), 0o644))

	_, err := Extract(zipPath, filepath.Join(dir, "out"))
	assert.Error(t, err)
}

func TestExtractCorruptArchive(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, ArchiveName)
	require.NoError(t, os.WriteFile(zipPath, []byte("<html>not a zip</html>"), 0o644))

	_, err := Extract(zipPath, dir)
	assert.Error(t, err)
}

func TestParseManifest(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "valid", raw: `{"libs":[],"content":["app/"]}`},
		{name: "missing libs", raw: `{"content":["app/"]}`, wantErr: true},
		{name: "missing content", raw: `{"libs":[]}`, wantErr: true},
		{name: "not json", raw: `libs: []`, wantErr: true},
		{name: "absolute entry", raw: `{"libs":[],"content":["/etc/passwd"]}`, wantErr: true},
		{name: "parent entry", raw: `{"libs":[],"content":["../outside/"]}`, wantErr: true},
		{name: "empty entry", raw: `{"libs":[],"content":["/"]}`, wantErr: true},
		{name: "blank library", raw: `{"libs":[" "],"content":[]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadManifestMissing(t *testing.T) {
	_, err := LoadManifest(t.TempDir())
	var mErr *ManifestError
	require.True(t, errors.As(err, &mErr))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRootNameFromURL(t *testing.T) {
	assert.Equal(t, "empty-installation-test-3",
		RootNameFromURL("https://github.com/snackbag-net/empty-installation/archive/refs/tags/test-3.zip"))
	assert.Equal(t, "", RootNameFromURL("https://example.com/release.zip"))
}
