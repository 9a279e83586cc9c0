// Package release fetches and unpacks the CrystalStudio release archive.
package release

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crystalsetup/internal/logging"
)

// ArchiveName is the downloaded archive inside the scratch directory.
const ArchiveName = "download.zip"

// Fetcher downloads release archives.
type Fetcher struct {
	HTTPClient *http.Client
}

// NewFetcher creates a fetcher whose downloads are bounded by timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{HTTPClient: &http.Client{Timeout: timeout}}
}

// Download fetches url into <scratchDir>/download.zip. The body is read
// completely into memory before anything is written.
func (f *Fetcher) Download(ctx context.Context, url, scratchDir string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", errors.New("download url is required")
	}
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "CrystalStudio-Setup")

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return "", fmt.Errorf("download interrupted: %w", err)
	}

	dest := filepath.Join(scratchDir, ArchiveName)
	if err := os.WriteFile(dest, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}

	logging.Info("Downloaded %s (%d bytes) to %s", url, buf.Len(), dest)
	return dest, nil
}

// RootNameFromURL derives the directory GitHub places at the top of a tag
// archive: ".../<repo>/archive/refs/tags/<tag>.zip" unpacks to "<repo>-<tag>".
func RootNameFromURL(url string) string {
	parts := strings.Split(strings.TrimSuffix(url, "/"), "/")
	for i, p := range parts {
		if p != "archive" || i == 0 {
			continue
		}
		repo := parts[i-1]
		tag := strings.TrimSuffix(parts[len(parts)-1], ".zip")
		if repo == "" || tag == "" {
			return ""
		}
		return repo + "-" + tag
	}
	return ""
}
