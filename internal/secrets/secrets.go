// Package secrets persists the account credentials issued during install.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the credentials file inside the save folder.
const FileName = "secrets.json"

// Credentials are written once per successful authentication.
type Credentials struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Masked returns the token with all but the last four characters hidden.
func (c Credentials) Masked() string {
	if len(c.Token) <= 4 {
		return strings.Repeat("*", len(c.Token))
	}
	return strings.Repeat("*", len(c.Token)-4) + c.Token[len(c.Token)-4:]
}

// Path returns the credentials file for saveFolder.
func Path(saveFolder string) string {
	return filepath.Join(saveFolder, FileName)
}

// Save overwrites the credentials file in saveFolder. The content is
// indented by four spaces and replaced atomically.
func Save(ctx context.Context, saveFolder string, creds Credentials) error {
	if ctx.Err() != nil {
		return fmt.Errorf("save secrets: %w", ctx.Err())
	}
	if err := os.MkdirAll(saveFolder, 0o750); err != nil {
		return fmt.Errorf("create save folder: %w", err)
	}

	bs, err := json.MarshalIndent(creds, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	target := Path(saveFolder)
	tempFile, err := os.CreateTemp(saveFolder, ".*"+FileName)
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tempFileName := tempFile.Name()

	if err := os.Chmod(tempFileName, 0o600); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempFileName)
		return fmt.Errorf("set temp file permissions: %w", err)
	}

	if _, err := tempFile.Write(bs); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempFileName)
		return fmt.Errorf("write: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tempFileName)
		return fmt.Errorf("close temp: %w", err)
	}

	if err := os.Rename(tempFileName, target); err != nil {
		_ = os.Remove(tempFileName)
		return fmt.Errorf("move %s to %s: %w", tempFileName, target, err)
	}
	return nil
}

// ErrNotFound is returned by Load when no credentials were saved yet.
var ErrNotFound = errors.New("no saved credentials")

// Load reads the credentials file from saveFolder.
func Load(saveFolder string) (Credentials, error) {
	var creds Credentials
	bs, err := os.ReadFile(Path(saveFolder))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return creds, ErrNotFound
		}
		return creds, fmt.Errorf("read secrets: %w", err)
	}
	if err := json.Unmarshal(bs, &creds); err != nil {
		return creds, fmt.Errorf("decode secrets: %w", err)
	}
	return creds, nil
}
