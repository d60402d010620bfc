package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewEmptyPathIsNop(t *testing.T) {
	log, err := New("")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	// Must be safe to use without side effects.
	log.Info("discarded")
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chronobind.log")

	log, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	log.Info("created backup")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	if !strings.Contains(string(data), "created backup") {
		t.Errorf("log content = %q", data)
	}
}
