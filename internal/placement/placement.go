// Package placement moves extracted release content into the install directory.
package placement

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"crystalsetup/internal/logging"
)

// Error reports the entry placement stopped at.
type Error struct {
	Entry string
	Op    string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("place %s: %s: %v", e.Entry, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsDirEntry reports whether a manifest entry names a directory.
func IsDirEntry(entry string) bool {
	return strings.HasSuffix(entry, "/")
}

// Place moves every entry from srcRoot to the same relative path under
// destDir, replacing whatever is there. It stops at the first failure and
// returns the entries placed so far; they are not rolled back.
func Place(srcRoot, destDir string, entries []string, observe func(entry string)) ([]string, error) {
	placed := make([]string, 0, len(entries))
	for _, entry := range entries {
		if err := placeOne(srcRoot, destDir, entry); err != nil {
			return placed, err
		}
		placed = append(placed, entry)
		if observe != nil {
			observe(entry)
		}
	}
	return placed, nil
}

func placeOne(srcRoot, destDir, entry string) error {
	rel := filepath.FromSlash(strings.TrimSuffix(entry, "/"))
	src := filepath.Join(srcRoot, rel)
	dest := filepath.Join(destDir, rel)

	if _, err := os.Lstat(src); err != nil {
		return &Error{Entry: entry, Op: "locate in release", Err: err}
	}

	if err := removeExisting(dest, IsDirEntry(entry)); err != nil {
		return &Error{Entry: entry, Op: "remove existing", Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &Error{Entry: entry, Op: "create parent", Err: err}
	}

	if err := move(src, dest); err != nil {
		return &Error{Entry: entry, Op: "move", Err: err}
	}

	logging.Debug("placed %s -> %s", src, dest)
	return nil
}

// removeExisting deletes dest. Directories go recursively, anything else
// individually; a missing dest is not an error.
func removeExisting(dest string, dirEntry bool) error {
	info, err := os.Lstat(dest)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	if info.IsDir() {
		if !dirEntry {
			logging.Warning("%s is a directory but the release lists it as a file, removing recursively", dest)
		}
		return os.RemoveAll(dest)
	}
	return os.Remove(dest)
}

func move(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	// Rename fails across filesystems; copy then delete the source.
	if err := copyTree(src, dest); err != nil {
		_ = os.RemoveAll(dest)
		return err
	}
	return os.RemoveAll(src)
}

func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dest string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
