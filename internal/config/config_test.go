package config

import (
	"os"
	"path/filepath"
	"testing"
)

func withTempHome(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()

	// Save original HOME and restore after
	origHome := os.Getenv("HOME")
	os.Setenv("HOME", tempDir)
	t.Cleanup(func() { os.Setenv("HOME", origHome) })

	return tempDir
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	withTempHome(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Retention.KeepLast != DefaultKeepLast {
		t.Errorf("KeepLast = %d, expected %d", cfg.Retention.KeepLast, DefaultKeepLast)
	}
	if cfg.PreferredBranch != "_retail_" {
		t.Errorf("PreferredBranch = %q", cfg.PreferredBranch)
	}
	if !cfg.ShowFriendlyNames {
		t.Error("ShowFriendlyNames should default to true")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	withTempHome(t)

	cfg := DefaultConfig()
	cfg.PreferredBranch = "_classic_"
	cfg.InstallRoots = []string{"/games/wow"}
	cfg.Retention.KeepLast = 3
	cfg.LogFile = "~/.chronobind/chronobind.log"

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.PreferredBranch != "_classic_" {
		t.Errorf("PreferredBranch = %q", loaded.PreferredBranch)
	}
	if len(loaded.InstallRoots) != 1 || loaded.InstallRoots[0] != "/games/wow" {
		t.Errorf("InstallRoots = %v", loaded.InstallRoots)
	}
	if loaded.Retention.KeepLast != 3 {
		t.Errorf("KeepLast = %d", loaded.Retention.KeepLast)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	home := withTempHome(t)

	dir := filepath.Join(home, ".chronobind")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	partial := "preferred_branch: _classic_era_\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.PreferredBranch != "_classic_era_" {
		t.Errorf("PreferredBranch = %q", cfg.PreferredBranch)
	}
	// Unspecified settings keep their defaults.
	if cfg.Retention.KeepLast != DefaultKeepLast {
		t.Errorf("KeepLast = %d, expected default", cfg.Retention.KeepLast)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	home := withTempHome(t)

	dir := filepath.Join(home, ".chronobind")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{not yaml:::"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestExpandPath(t *testing.T) {
	home := withTempHome(t)

	tests := []struct {
		input    string
		expected string
	}{
		{"~/wow", filepath.Join(home, "wow")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.input); got != tt.expected {
			t.Errorf("ExpandPath(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}
