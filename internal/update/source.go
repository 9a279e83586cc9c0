package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBinarySize bounds a downloaded installer binary.
const maxBinarySize = 200 * 1024 * 1024

// DescriptorSource fetches the version descriptor and installer binaries
type DescriptorSource struct {
	URL        string
	HTTPClient *http.Client
	// MaxBinarySize rejects larger downloads instead of truncating them.
	MaxBinarySize int64
}

// NewDescriptorSource creates a source reading the descriptor at url
func NewDescriptorSource(url string, timeout time.Duration) *DescriptorSource {
	return &DescriptorSource{
		URL:           url,
		HTTPClient:    &http.Client{Timeout: timeout},
		MaxBinarySize: maxBinarySize,
	}
}

// FetchDescriptor downloads and decodes the version descriptor
func (s *DescriptorSource) FetchDescriptor(ctx context.Context) (*Descriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "CrystalStudio-Setup")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch version descriptor: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var fields struct {
		Ver    *int   `json:"ver"`
		URL    string `json:"url"`
		SHA256 string `json:"sha256"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		return nil, fmt.Errorf("failed to decode version descriptor: %w", err)
	}
	if fields.Ver == nil {
		return nil, fmt.Errorf("version descriptor has no \"ver\"")
	}

	return &Descriptor{Ver: *fields.Ver, URL: fields.URL, SHA256: fields.SHA256}, nil
}

// DownloadBinary fetches a published installer binary into memory
func (s *DescriptorSource) DownloadBinary(ctx context.Context, url string, progressCb func(downloaded, total int64)) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "CrystalStudio-Setup")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download installer: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download installer (HTTP %d)", resp.StatusCode)
	}

	limit := s.MaxBinarySize
	if limit <= 0 {
		limit = maxBinarySize
	}
	if resp.ContentLength > limit {
		return nil, fmt.Errorf("installer is %d bytes, larger than the %d byte limit", resp.ContentLength, limit)
	}

	reader := &progressReader{
		reader:     io.LimitReader(resp.Body, limit+1),
		progressCb: progressCb,
		total:      resp.ContentLength,
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read installer: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("installer exceeds the %d byte limit", limit)
	}
	if resp.ContentLength >= 0 && int64(len(data)) != resp.ContentLength {
		return nil, fmt.Errorf("installer download incomplete: got %d of %d bytes", len(data), resp.ContentLength)
	}
	return data, nil
}

// progressReader wraps a reader to report progress
type progressReader struct {
	reader     io.Reader
	progressCb func(downloaded, total int64)
	downloaded int64
	total      int64
}

func (p *progressReader) Read(b []byte) (n int, err error) {
	n, err = p.reader.Read(b)
	if n > 0 {
		p.downloaded += int64(n)
		if p.progressCb != nil {
			p.progressCb(p.downloaded, p.total)
		}
	}
	return n, err
}
