package update

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func newDescriptorServer(t *testing.T, descriptor string, binary []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/installer.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(descriptor))
	})
	mux.HandleFunc("/crystal-setup", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(binary)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name       string
		current    int
		descriptor string
		outdated   bool
		wantErr    bool
	}{
		{name: "older installer", current: 1, descriptor: `{"ver": 2}`, outdated: true},
		{name: "same version", current: 2, descriptor: `{"ver": 2}`, outdated: false},
		{name: "newer than published", current: 3, descriptor: `{"ver": 2}`, outdated: false},
		{name: "missing ver", current: 1, descriptor: `{"version": 2}`, wantErr: true},
		{name: "not json", current: 1, descriptor: `<html>`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newDescriptorServer(t, tt.descriptor, nil)
			svc := NewService(tt.current, NewDescriptorSource(srv.URL+"/installer.json", 5*time.Second))

			info, err := svc.Check(context.Background())
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Check() expected error, got %+v", info)
				}
				return
			}
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if info.Outdated != tt.outdated {
				t.Errorf("Outdated = %v, want %v", info.Outdated, tt.outdated)
			}
			wantMsg := ""
			if tt.outdated {
				wantMsg = OutdatedMessage
			}
			if info.Message() != wantMsg {
				t.Errorf("Message() = %q, want %q", info.Message(), wantMsg)
			}
		})
	}
}

func TestCheckStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	svc := NewService(1, NewDescriptorSource(srv.URL, 5*time.Second))
	if _, err := svc.Check(context.Background()); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func newTarget(t *testing.T) string {
	t.Helper()
	target := filepath.Join(t.TempDir(), "crystal-setup")
	if err := os.WriteFile(target, []byte("old binary"), 0o755); err != nil {
		t.Fatalf("write target: %v", err)
	}
	return target
}

func TestDownloadBinaryLimits(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		contentLength string
		wantErr       string
	}{
		{name: "within limit", body: "0123456789"},
		{name: "declared too large", body: "0123456789abcdef", wantErr: "larger than"},
		{name: "streamed too large", body: "0123456789abcdef", contentLength: "-", wantErr: "exceeds"},
		{name: "short body", body: "01234", contentLength: "8", wantErr: "installer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				switch tt.contentLength {
				case "":
					w.Header().Set("Content-Length", strconv.Itoa(len(tt.body)))
				case "-":
					// Flushing before the body forces chunked encoding with no length.
					w.(http.Flusher).Flush()
				default:
					w.Header().Set("Content-Length", tt.contentLength)
				}
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			source := NewDescriptorSource(srv.URL+"/installer.json", 5*time.Second)
			source.MaxBinarySize = 12

			data, err := source.DownloadBinary(context.Background(), srv.URL+"/crystal-setup", nil)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("DownloadBinary() error = %v", err)
				}
				if string(data) != tt.body {
					t.Errorf("DownloadBinary() = %q, want %q", data, tt.body)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("DownloadBinary() error = %v, want containing %q", err, tt.wantErr)
			}
			if data != nil {
				t.Errorf("DownloadBinary() returned %d bytes on error", len(data))
			}
		})
	}
}

func TestApplyReplacesTarget(t *testing.T) {
	binary := []byte("new binary")
	sum := sha256.Sum256(binary)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/installer.json" {
			_, _ = fmt.Fprintf(w, `{"ver": 5, "url": "http://%s/crystal-setup", "sha256": %q}`, r.Host, hex.EncodeToString(sum[:]))
			return
		}
		_, _ = w.Write(binary)
	}))
	defer srv.Close()

	svc := NewService(1, NewDescriptorSource(srv.URL+"/installer.json", 5*time.Second))
	svc.targetPath = newTarget(t)

	var stages []string
	if err := svc.Apply(context.Background(), func(p UpdateProgress) {
		if len(stages) == 0 || stages[len(stages)-1] != p.Stage {
			stages = append(stages, p.Stage)
		}
	}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	got, err := os.ReadFile(svc.targetPath)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if string(got) != "new binary" {
		t.Errorf("target = %q, want new binary", got)
	}
	if stages[len(stages)-1] != "complete" {
		t.Errorf("last stage = %q, want complete", stages[len(stages)-1])
	}
}

func TestApplyRejectsChecksumMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/installer.json" {
			_, _ = fmt.Fprintf(w, `{"ver": 5, "url": "http://%s/crystal-setup", "sha256": %q}`, r.Host, hex.EncodeToString(make([]byte, 32)))
			return
		}
		_, _ = w.Write([]byte("tampered"))
	}))
	defer srv.Close()

	svc := NewService(1, NewDescriptorSource(srv.URL+"/installer.json", 5*time.Second))
	svc.targetPath = newTarget(t)

	if err := svc.Apply(context.Background(), nil); err == nil {
		t.Fatal("expected checksum error")
	}
	got, _ := os.ReadFile(svc.targetPath)
	if string(got) != "old binary" {
		t.Errorf("target modified after failed update: %q", got)
	}
}

func TestApplyWithoutPublishedBinary(t *testing.T) {
	srv := newDescriptorServer(t, `{"ver": 5}`, nil)
	svc := NewService(1, NewDescriptorSource(srv.URL+"/installer.json", 5*time.Second))

	if err := svc.Apply(context.Background(), nil); err != ErrNoDownload {
		t.Fatalf("Apply() error = %v, want ErrNoDownload", err)
	}
}

func TestApplyUpToDate(t *testing.T) {
	srv := newDescriptorServer(t, `{"ver": 1, "url": "http://unused"}`, nil)
	svc := NewService(1, NewDescriptorSource(srv.URL+"/installer.json", 5*time.Second))

	if err := svc.Apply(context.Background(), nil); err != ErrUpToDate {
		t.Fatalf("Apply() error = %v, want ErrUpToDate", err)
	}
}
