package release

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Extract unpacks the whole archive into destDir and returns the directory
// that holds the release: the archive's single top-level directory when it
// has one, otherwise destDir itself.
func Extract(archivePath, destDir string) (string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = r.Close() }()

	cleanDest, err := filepath.Abs(destDir)
	if err != nil {
		return "", err
	}

	for _, f := range r.File {
		if err := extractFile(f, cleanDest); err != nil {
			return "", err
		}
	}

	if top := commonTopDir(r.File); top != "" {
		return filepath.Join(cleanDest, top), nil
	}
	return cleanDest, nil
}

func extractFile(f *zip.File, destDir string) error {
	target := filepath.Join(destDir, filepath.FromSlash(f.Name))
	if target != destDir && !strings.HasPrefix(target, destDir+string(os.PathSeparator)) {
		return fmt.Errorf("archive entry %q escapes the extraction directory", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", f.Name, err)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer func() { _ = src.Close() }()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(dst, src); err != nil { //nolint:gosec // archive comes from the configured release URL
		_ = dst.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return dst.Close()
}

// commonTopDir returns the first path segment shared by every entry, or ""
// when entries live at the archive root.
func commonTopDir(files []*zip.File) string {
	top := ""
	for _, f := range files {
		name := strings.TrimPrefix(f.Name, "./")
		idx := strings.Index(name, "/")
		if idx <= 0 {
			return ""
		}
		seg := name[:idx]
		if top == "" {
			top = seg
		} else if seg != top {
			return ""
		}
	}
	return top
}
