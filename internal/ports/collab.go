package ports

// Discovery supplies the known game installs and their branches. The engine
// never detects installs itself; it treats the discovery layer as a
// read-only collaborator.
//
// Implementations return branch roots that exist on disk; the engine only
// relies on existence, never on branch contents.
type Discovery interface {
	// Installs returns the detected installs, most preferred first.
	Installs() ([]Install, error)
}

// Install is a detected client root with its branches, defined structurally
// here to keep ports free of domain imports beyond manifest.
type Install struct {
	Root     string
	Branches []BranchRef
}

// BranchRef identifies one branch of an install.
type BranchRef struct {
	Ident string
	Root  string
}

// AddonReader supplies advisory character display metadata read from the
// companion in-game addon's saved data. The engine never requires it for
// correctness; a reader returning no metadata is valid.
type AddonReader interface {
	// Meta returns class and level for a character key ("Account/Realm/Name"),
	// or ok=false when the addon has no data for it.
	Meta(characterKey string) (class string, level int, ok bool)
}
