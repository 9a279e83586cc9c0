// Package releasetest builds release archives for tests.
package releasetest

import (
	"archive/zip"
	"bytes"
	"sort"
	"strings"
	"testing"
)

// Zip returns an archive holding files. Names ending in "/" become
// directory entries; parent directories are not added implicitly.
func Zip(t testing.TB, files map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range names {
		if strings.HasSuffix(name, "/") {
			if _, err := w.Create(name); err != nil {
				t.Fatalf("create dir entry %s: %v", name, err)
			}
			continue
		}
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := f.Write([]byte(files[name])); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}
