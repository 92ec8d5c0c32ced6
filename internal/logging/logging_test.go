package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v", tt.input, err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNew_TeesToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var stdout bytes.Buffer

	logger, closer, err := New(Options{Level: "info", Format: "json", Dir: dir}, &stdout)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("録画を開始", "role", "top")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	for name, out := range map[string]string{"stdout": stdout.String(), "file": string(b)} {
		if !strings.Contains(out, `"role":"top"`) {
			t.Errorf("%s: expected JSON record, got %q", name, out)
		}
		if strings.Contains(out, "hidden") {
			t.Errorf("%s: debug record should be filtered", name)
		}
	}
}

func TestNew_InvalidFormat(t *testing.T) {
	if _, _, err := New(Options{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Error("Expected error for unknown format")
	}
}
