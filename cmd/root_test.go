package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDelayCommand(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"delay"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	// 速度5の除去口は3.84秒、運搬口は5.76秒
	for _, want := range []string{"3.840s", "5.760s", "200ms"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out.String())
		}
	}
}

func TestDelayCommand_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dcr.yaml")
	if err := os.WriteFile(path, []byte("ledger:\n  capacity: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"delay", "--config", path})

	if err := root.Execute(); err == nil {
		t.Error("Expected invalid config to fail")
	}
}
