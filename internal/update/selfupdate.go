// Package update checks the published installer version and replaces the running installer.
package update

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/minio/selfupdate"

	"crystalsetup/internal/logging"
)

// ErrNoDownload is returned by Apply when the descriptor publishes no binary.
var ErrNoDownload = errors.New("no installer download published, please install the new version manually")

// ErrUpToDate is returned by Apply when nothing newer is published.
var ErrUpToDate = errors.New("installer is up to date")

// Service compares the embedded installer version with the published one
type Service struct {
	currentVersion int
	source         *DescriptorSource
	targetPath     string
}

// NewService creates an update service for the given embedded version
func NewService(currentVersion int, source *DescriptorSource) *Service {
	return &Service{
		currentVersion: currentVersion,
		source:         source,
	}
}

// Check fetches the descriptor and reports whether this installer is outdated.
func (s *Service) Check(ctx context.Context) (*UpdateInfo, error) {
	descriptor, err := s.source.FetchDescriptor(ctx)
	if err != nil {
		return nil, err
	}

	info := &UpdateInfo{
		CurrentVersion: s.currentVersion,
		LatestVersion:  descriptor.Ver,
		Outdated:       s.currentVersion < descriptor.Ver,
		DownloadURL:    descriptor.URL,
		SHA256:         descriptor.SHA256,
	}

	logging.Info("Version check complete. Current: %d, Latest: %d, Outdated: %v",
		info.CurrentVersion, info.LatestVersion, info.Outdated)
	return info, nil
}

// Apply downloads the published installer and replaces the running binary.
func (s *Service) Apply(ctx context.Context, progressCallback func(UpdateProgress)) error {
	report := func(stage string, percentage float64, message string) {
		if progressCallback != nil {
			progressCallback(UpdateProgress{Stage: stage, Percentage: percentage, Message: message})
		}
	}

	report("checking", 0, "Checking for updates...")
	info, err := s.Check(ctx)
	if err != nil {
		return err
	}
	if !info.Outdated {
		return ErrUpToDate
	}
	if info.DownloadURL == "" {
		return ErrNoDownload
	}

	var checksum []byte
	if info.SHA256 != "" {
		checksum, err = hex.DecodeString(strings.TrimSpace(info.SHA256))
		if err != nil {
			return fmt.Errorf("invalid sha256 in version descriptor: %w", err)
		}
	}

	report("downloading", 0, fmt.Sprintf("Downloading installer version %d...", info.LatestVersion))
	binary, err := s.source.DownloadBinary(ctx, info.DownloadURL, func(downloaded, total int64) {
		if total > 0 {
			report("downloading", float64(downloaded)/float64(total)*100,
				fmt.Sprintf("Downloading... %d/%d bytes", downloaded, total))
		}
	})
	if err != nil {
		return err
	}

	if checksum != nil {
		report("verifying", 90, "Verifying checksum...")
	}

	report("applying", 95, "Applying update...")
	err = selfupdate.Apply(bytes.NewReader(binary), selfupdate.Options{
		TargetPath: s.targetPath,
		Checksum:   checksum,
	})
	if err != nil {
		if rerr := selfupdate.RollbackError(err); rerr != nil {
			return fmt.Errorf("update failed and rollback failed: %v, rollback error: %v", err, rerr)
		}
		return fmt.Errorf("failed to apply update: %w", err)
	}

	report("complete", 100, "Update applied successfully!")
	logging.Info("Successfully updated installer to version %d", info.LatestVersion)
	return nil
}
