package addonmeta

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zephh/chronobind/internal/adapters/osfs"
	"github.com/zephh/chronobind/internal/chrono"
)

const savedData = `
ChronoBindDB = {
	["ACC1/Stormrage/Thrall"] = { class = "Shaman", level = 80 },
	["ACC1/Stormrage/Jaina"] = { class = "Mage", level = 70 },
	["broken entry"] = { class = },
}
`

func TestMeta(t *testing.T) {
	branch := chrono.Branch{Ident: chrono.BranchRetail, Label: "Retail", Root: t.TempDir()}
	dir := filepath.Join(branch.ConfigDir(), chrono.AccountDirName, "ACC1", "SavedVariables")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, SavedVariablesFile), []byte(savedData), 0644); err != nil {
		t.Fatal(err)
	}

	r := New(osfs.New(), branch)

	class, level, ok := r.Meta("ACC1/Stormrage/Thrall")
	if !ok || class != "Shaman" || level != 80 {
		t.Errorf("Meta = %q %d %v", class, level, ok)
	}

	class, level, ok = r.Meta("ACC1/Stormrage/Jaina")
	if !ok || class != "Mage" || level != 70 {
		t.Errorf("Meta = %q %d %v", class, level, ok)
	}

	if _, _, ok := r.Meta("ACC1/Stormrage/Unknown"); ok {
		t.Error("expected no metadata for unknown character")
	}
}

func TestMetaMissingFile(t *testing.T) {
	branch := chrono.Branch{Ident: chrono.BranchRetail, Label: "Retail", Root: t.TempDir()}

	if _, _, ok := New(osfs.New(), branch).Meta("ACC1/Stormrage/Thrall"); ok {
		t.Error("expected no metadata without saved data")
	}
}
