package chrono

import (
	"testing"
	"time"
)

func TestFormatBackupName(t *testing.T) {
	ts := time.Date(2026, 3, 14, 15, 9, 26, 0, time.Local)

	tests := []struct {
		name     string
		input    BackupName
		expected string
	}{
		{
			name: "manual backup",
			input: BackupName{
				Character: "Thrall",
				Timestamp: ts,
				ID:        "a1b2c3d4",
				Origin:    OriginManual,
			},
			expected: "Thrall_20260314-150926_a1b2c3d4.zip",
		},
		{
			name: "safety backup",
			input: BackupName{
				Character: "Thrall",
				Timestamp: ts,
				ID:        "a1b2c3d4",
				Origin:    OriginAutoPaste,
			},
			expected: "Thrall_20260314-150926_a1b2c3d4_RESTORE.zip",
		},
		{
			name: "pinned manual backup",
			input: BackupName{
				Character: "Jaina",
				Timestamp: ts,
				ID:        "deadbeef",
				Origin:    OriginManual,
				Pinned:    true,
			},
			expected: "Jaina_20260314-150926_deadbeef_PINNED.zip",
		},
		{
			name: "pinned safety backup",
			input: BackupName{
				Character: "Jaina",
				Timestamp: ts,
				ID:        "deadbeef",
				Origin:    OriginAutoPaste,
				Pinned:    true,
			},
			expected: "Jaina_20260314-150926_deadbeef_RESTORE_PINNED.zip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatBackupName(tt.input)
			if got != tt.expected {
				t.Errorf("FormatBackupName() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestParseBackupNameRoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
	names := []BackupName{
		{Character: "Thrall", Timestamp: ts, ID: "a1b2c3d4", Origin: OriginManual},
		{Character: "Thrall", Timestamp: ts, ID: "a1b2c3d4", Origin: OriginAutoPaste},
		{Character: "Jaina", Timestamp: ts, ID: "deadbeef", Origin: OriginManual, Pinned: true},
		{Character: "Jaina", Timestamp: ts, ID: "deadbeef", Origin: OriginAutoPaste, Pinned: true},
	}

	for _, want := range names {
		got, ok := ParseBackupName(FormatBackupName(want))
		if !ok {
			t.Fatalf("ParseBackupName(%q) not ok", FormatBackupName(want))
		}
		if got != want {
			t.Errorf("round trip = %+v, expected %+v", got, want)
		}
	}
}

func TestParseBackupNameRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not a zip", "Thrall_20260314-150926_a1b2c3d4.txt"},
		{"missing id", "Thrall_20260314-150926.zip"},
		{"bad timestamp", "Thrall_notatime_a1b2c3d4.zip"},
		{"empty", ""},
		{"plain file", "readme.zip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := ParseBackupName(tt.input); ok {
				t.Errorf("ParseBackupName(%q) ok, expected rejection", tt.input)
			}
		})
	}
}

func TestParseBackupNameIgnoresUnknownFlags(t *testing.T) {
	got, ok := ParseBackupName("Thrall_20260314-150926_a1b2c3d4_FUTUREFLAG.zip")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if got.Origin != OriginManual || got.Pinned {
		t.Errorf("unknown flag changed parse result: %+v", got)
	}
}
