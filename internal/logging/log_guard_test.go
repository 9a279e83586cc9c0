package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestNoStdlibLogUsage keeps direct uses of the stdlib log package out of
// the tree. All log calls go through this package so they reach the
// rotating file and respect the configured level.
func TestNoStdlibLogUsage(t *testing.T) {
	repoRoot := filepath.Clean(filepath.Join("..", ".."))

	err := filepath.WalkDir(repoRoot, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			switch d.Name() {
			case "vendor", ".git", "node_modules", "_examples":
				return filepath.SkipDir
			}
			return nil
		}

		if filepath.Ext(path) != ".go" {
			return nil
		}

		if filepath.Base(path) == "logger.go" && strings.Contains(path, string(filepath.Separator)+"logging"+string(filepath.Separator)) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if strings.Contains(string(content), "\n\t\"log\"") || strings.Contains(string(content), "import \"log\"") {
			t.Errorf("stdlib log import found in %s; use crystalsetup/internal/logging instead", path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk error: %v", err)
	}
}
