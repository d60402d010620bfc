// Package chrono defines the domain model shared by the engine: installs,
// branches, character identity and the on-disk layout the rest of the tool
// relies on. The path scheme here is a stable contract; existing backups must
// remain discoverable across versions.
package chrono

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/zephh/chronobind/internal/ports"
)

// Directory names making up the on-disk layout.
const (
	// DataDirName is the ChronoBind data directory nested in a branch root.
	DataDirName = "ChronoBind"
	// CharactersDirName holds per-character backups inside the data dir.
	CharactersDirName = "Characters"
	// ConfigDirName is the live configuration tree of a branch.
	ConfigDirName = "WTF"
	// AccountDirName is the account level of the live configuration tree.
	AccountDirName = "Account"
)

// Well-known branch idents.
const (
	BranchRetail     = "_retail_"
	BranchClassic    = "_classic_"
	BranchClassicEra = "_classic_era_"
)

// Branch is one installed edition of the client, with its own configuration
// tree and ChronoBind data directory.
type Branch struct {
	Ident string // directory name, e.g. "_retail_"
	Label string // display label, e.g. "Retail"
	Root  string // absolute branch root path
}

// DataDir returns the branch's ChronoBind data directory.
func (b Branch) DataDir() string {
	return filepath.Join(b.Root, DataDirName)
}

// ConfigDir returns the branch's live configuration tree root.
func (b Branch) ConfigDir() string {
	return filepath.Join(b.Root, ConfigDirName)
}

// Character identifies one character by its (Account, Realm, Name) position
// in the branch layout. Class and Level are advisory display metadata from
// the addon reader; they never affect correctness.
type Character struct {
	Account string
	Realm   string
	Name    string

	Class string
	Level int
}

// Key returns the character's identity as a single path-style key, used to
// address the per-character lock table and backup directories.
func (c Character) Key() string {
	return c.Account + "/" + c.Realm + "/" + c.Name
}

// String implements fmt.Stringer for log and UI output.
func (c Character) String() string {
	return fmt.Sprintf("%s (%s/%s)", c.Name, c.Account, c.Realm)
}

// ConfigPath returns the character's live configuration directory within the
// given branch.
func (c Character) ConfigPath(b Branch) string {
	return filepath.Join(b.ConfigDir(), AccountDirName, c.Account, c.Realm, c.Name)
}

// BackupsPath returns the character's backup directory within the given
// branch's ChronoBind data dir.
func (c Character) BackupsPath(b Branch) string {
	return filepath.Join(b.DataDir(), CharactersDirName, c.Account, c.Realm, c.Name)
}

// Selection is a named, ordered set of relative paths under a character's
// configuration tree. Friendly maps a real relative path to a display name;
// it never changes the path used for storage.
type Selection struct {
	Name     string
	Paths    []string
	Friendly map[string]string
}

// DisplayName returns the friendly name for a relative path, falling back to
// the path itself.
func (s Selection) DisplayName(rel string) string {
	if name, ok := s.Friendly[rel]; ok {
		return name
	}
	return rel
}

// Empty reports whether the selection covers no paths.
func (s Selection) Empty() bool {
	return len(s.Paths) == 0
}

// ScanCharacters lists the characters present in a branch's live
// configuration tree by walking Account/Realm/Name directories. Missing
// levels simply yield no characters; only existence is checked.
func ScanCharacters(fs ports.FileSystem, b Branch) ([]Character, error) {
	accountRoot := filepath.Join(b.ConfigDir(), AccountDirName)

	accounts, err := readDirNames(fs, accountRoot)
	if err != nil {
		return nil, fmt.Errorf("reading account dir: %w", err)
	}

	var chars []Character
	for _, account := range accounts {
		realms, err := readDirNames(fs, filepath.Join(accountRoot, account))
		if err != nil {
			continue
		}
		for _, realm := range realms {
			names, err := readDirNames(fs, filepath.Join(accountRoot, account, realm))
			if err != nil {
				continue
			}
			for _, name := range names {
				chars = append(chars, Character{Account: account, Realm: realm, Name: name})
			}
		}
	}

	sort.Slice(chars, func(i, j int) bool { return chars[i].Key() < chars[j].Key() })
	return chars, nil
}

// readDirNames returns the names of subdirectories of dir, skipping files.
func readDirNames(fs ports.FileSystem, dir string) ([]string, error) {
	entries, err := fs.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// BranchLabel returns a display label for a known branch ident, or the ident
// itself when unknown.
func BranchLabel(ident string) string {
	switch ident {
	case BranchRetail:
		return "Retail"
	case BranchClassic:
		return "Classic"
	case BranchClassicEra:
		return "Classic Era"
	default:
		return ident
	}
}
