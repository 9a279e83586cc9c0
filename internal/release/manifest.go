package release

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ManifestName is the descriptor at the root of every release.
const ManifestName = "installation.json"

// Manifest lists what a release needs installed and placed.
type Manifest struct {
	Libs    []string `json:"libs"`
	Content []string `json:"content"`
}

// ManifestError reports a missing or malformed installation.json.
type ManifestError struct {
	Path string
	Err  error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("invalid manifest %s: %v", e.Path, e.Err)
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}

// LoadManifest reads installation.json from root.
func LoadManifest(root string) (*Manifest, error) {
	p := filepath.Join(root, ManifestName)
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, &ManifestError{Path: p, Err: err}
	}

	m, err := ParseManifest(raw)
	if err != nil {
		return nil, &ManifestError{Path: p, Err: err}
	}
	return m, nil
}

// ParseManifest decodes and validates a manifest. Both keys must be present.
func ParseManifest(raw []byte) (*Manifest, error) {
	var fields struct {
		Libs    *[]string `json:"libs"`
		Content *[]string `json:"content"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if fields.Libs == nil {
		return nil, fmt.Errorf("missing \"libs\"")
	}
	if fields.Content == nil {
		return nil, fmt.Errorf("missing \"content\"")
	}

	m := &Manifest{Libs: *fields.Libs, Content: *fields.Content}
	for _, entry := range m.Content {
		if err := validateEntry(entry); err != nil {
			return nil, err
		}
	}
	for _, lib := range m.Libs {
		if strings.TrimSpace(lib) == "" {
			return nil, fmt.Errorf("empty library name")
		}
	}
	return m, nil
}

func validateEntry(entry string) error {
	trimmed := strings.TrimSuffix(entry, "/")
	if trimmed == "" {
		return fmt.Errorf("empty content entry")
	}
	if path.IsAbs(trimmed) || filepath.IsAbs(trimmed) {
		return fmt.Errorf("content entry %q must be relative", entry)
	}
	clean := path.Clean(trimmed)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("content entry %q leaves the release directory", entry)
	}
	return nil
}
