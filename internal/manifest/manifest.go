// Package manifest defines the metadata documents embedded in backup
// archives and bundles. A manifest makes its archive self-describing: a
// backup directory can be inspected or moved between machines without any
// external index.
package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Embedded manifest entry names.
const (
	// BackupEntryName is the manifest entry written first into every backup
	// archive.
	BackupEntryName = "chronobind.manifest.json"
	// BundleEntryName is the top-level identity manifest of a bundle.
	BundleEntryName = "chronobind.bundle.json"
)

// Backup describes one backup archive: the character it was taken from, when
// and why it was created, and the selection it covers.
type Backup struct {
	Account   string    `json:"account"`
	Realm     string    `json:"realm"`
	Character string    `json:"character"`
	CreatedAt time.Time `json:"created_at"`
	Origin    string    `json:"origin"`
	Pinned    bool      `json:"pinned"`
	Selection []string  `json:"selection"`
	FileCount int       `json:"file_count"`
}

// Encode writes the manifest as indented JSON.
func (b Backup) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}

// DecodeBackup parses a backup manifest document.
func DecodeBackup(r io.Reader) (Backup, error) {
	var b Backup
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return Backup{}, fmt.Errorf("parsing backup manifest: %w", err)
	}
	return b, nil
}

// BundleEntry describes one backup carried inside a bundle, with enough
// identity to reconstruct its storage path on another machine.
type BundleEntry struct {
	Account   string    `json:"account"`
	Realm     string    `json:"realm"`
	Character string    `json:"character"`
	CreatedAt time.Time `json:"created_at"`
	File      string    `json:"file"`
	Origin    string    `json:"origin"`
	Pinned    bool      `json:"pinned"`
	SizeBytes int64     `json:"size_bytes"`
}

// Bundle is the top-level identity manifest of an export bundle.
type Bundle struct {
	BranchLabel string        `json:"branch_label"`
	ExportedAt  time.Time     `json:"exported_at"`
	Entries     []BundleEntry `json:"entries"`
}

// Encode writes the bundle manifest as indented JSON.
func (b Bundle) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}

// DecodeBundle parses a bundle manifest document.
func DecodeBundle(r io.Reader) (Bundle, error) {
	var b Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return Bundle{}, fmt.Errorf("parsing bundle manifest: %w", err)
	}
	return b, nil
}
