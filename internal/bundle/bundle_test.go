package bundle

import (
	"archive/zip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/zephh/chronobind/internal/adapters/osfs"
	"github.com/zephh/chronobind/internal/archive"
	"github.com/zephh/chronobind/internal/chrono"
	"github.com/zephh/chronobind/internal/errdefs"
	"github.com/zephh/chronobind/internal/manifest"
	"github.com/zephh/chronobind/internal/store"
)

var (
	charThrall = chrono.Character{Account: "ACC1", Realm: "Stormrage", Name: "Thrall"}
	charJaina  = chrono.Character{Account: "ACC2", Realm: "Proudmoore", Name: "Jaina"}
)

// newBranchStore builds a store over a fresh temp branch with live trees for
// both test characters.
func newBranchStore(t *testing.T) *store.Store {
	t.Helper()
	branch := chrono.Branch{Ident: chrono.BranchRetail, Label: "Retail", Root: t.TempDir()}
	for _, char := range []chrono.Character{charThrall, charJaina} {
		dir := char.ConfigPath(branch)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "config-cache.wtf"), []byte("SET owner \""+char.Name+"\""), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return store.New(branch, osfs.New(), archive.New(), 10, nil)
}

func createBackup(t *testing.T, st *store.Store, char chrono.Character) *store.Backup {
	t.Helper()
	sel := chrono.Selection{Name: "All", Paths: []string{"config-cache.wtf"}}
	b, err := st.Create(char, sel, chrono.OriginManual, false, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return b
}

func TestExportWholeBranch(t *testing.T) {
	st := newBranchStore(t)
	b1 := createBackup(t, st, charThrall)
	b2 := createBackup(t, st, charJaina)

	outPath := filepath.Join(t.TempDir(), "bundle.zip")
	m, err := NewExporter(osfs.New(), nil).Export(st, nil, nil, outPath, nil)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(m.Entries) != 2 {
		t.Fatalf("bundle has %d entries, expected 2", len(m.Entries))
	}
	if m.BranchLabel != "Retail" {
		t.Errorf("branch label = %q", m.BranchLabel)
	}

	// The container must hold the manifest plus each backup under its
	// Characters/<Account>/<Realm>/<Name>/ path.
	r, err := zip.OpenReader(outPath)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	names := make(map[string]bool)
	for _, f := range r.File {
		names[f.Name] = true
	}
	if !names[manifest.BundleEntryName] {
		t.Error("bundle manifest entry missing")
	}
	for _, b := range []*store.Backup{b1, b2} {
		want := backupEntryPath(b.Character, b.FileName())
		if !names[want] {
			t.Errorf("bundle missing entry %q, has %v", want, names)
		}
	}
}

func TestExportSelectedBackups(t *testing.T) {
	st := newBranchStore(t)
	b1 := createBackup(t, st, charThrall)
	createBackup(t, st, charThrall)

	outPath := filepath.Join(t.TempDir(), "bundle.zip")
	m, err := NewExporter(osfs.New(), nil).Export(st, []chrono.Character{charThrall}, []string{b1.ID}, outPath, nil)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(m.Entries) != 1 || m.Entries[0].File != b1.FileName() {
		t.Errorf("entries = %+v, expected only %s", m.Entries, b1.FileName())
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newBranchStore(t)
	b := createBackup(t, src, charThrall)

	outPath := filepath.Join(t.TempDir(), "bundle.zip")
	if _, err := NewExporter(osfs.New(), nil).Export(src, nil, nil, outPath, nil); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	dst := newBranchStore(t)
	res, err := NewImporter(nil).Import(dst, outPath, nil)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(res.Created) != 1 || len(res.Conflicts) != 0 {
		t.Fatalf("result = %+v", res)
	}

	// The imported backup keeps its identity and restores cleanly on the new
	// branch root.
	backups, err := dst.List(charThrall)
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 1 || backups[0].ID != b.ID {
		t.Fatalf("imported backups = %+v", backups)
	}

	if _, err := dst.Restore(b.ID, nil); err != nil {
		t.Fatalf("Restore of imported backup failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(charThrall.ConfigPath(dst.Branch()), "config-cache.wtf"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "SET owner \"Thrall\"" {
		t.Errorf("restored content = %q", data)
	}
}

func TestImportSkipsConflictsAndContinues(t *testing.T) {
	src := newBranchStore(t)
	createBackup(t, src, charThrall)
	createBackup(t, src, charJaina)

	outPath := filepath.Join(t.TempDir(), "bundle.zip")
	if _, err := NewExporter(osfs.New(), nil).Export(src, nil, nil, outPath, nil); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	dst := newBranchStore(t)
	if _, err := NewImporter(nil).Import(dst, outPath, nil); err != nil {
		t.Fatalf("first Import failed: %v", err)
	}

	// Importing the same bundle again conflicts on every entry but still
	// succeeds as a whole.
	res, err := NewImporter(nil).Import(dst, outPath, nil)
	if err != nil {
		t.Fatalf("second Import failed: %v", err)
	}
	if len(res.Created) != 0 || len(res.Conflicts) != 2 {
		t.Fatalf("result = %+v, expected 2 conflicts", res)
	}
	for _, c := range res.Conflicts {
		if !errors.Is(c.Err, errdefs.ErrImportConflict) {
			t.Errorf("conflict err = %v", c.Err)
		}
	}

	// Nothing was duplicated.
	for _, char := range []chrono.Character{charThrall, charJaina} {
		backups, err := dst.List(char)
		if err != nil {
			t.Fatal(err)
		}
		if len(backups) != 1 {
			t.Errorf("%s has %d backups, expected 1", char.Name, len(backups))
		}
	}
}

func TestImportCorruptBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	if err := os.WriteFile(path, []byte("not a zip"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := NewImporter(nil).Import(newBranchStore(t), path, nil)
	if !errors.Is(err, errdefs.ErrCorruptArchive) {
		t.Errorf("err = %v, expected ErrCorruptArchive", err)
	}
}

func TestImportMissingEntryAborts(t *testing.T) {
	src := newBranchStore(t)
	b := createBackup(t, src, charThrall)

	outPath := filepath.Join(t.TempDir(), "bundle.zip")
	if _, err := NewExporter(osfs.New(), nil).Export(src, nil, nil, outPath, nil); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	// Rewrite the bundle with the backup entry dropped, manifest intact.
	r, err := zip.OpenReader(outPath)
	if err != nil {
		t.Fatal(err)
	}
	truncated := filepath.Join(t.TempDir(), "truncated.zip")
	out, err := os.Create(truncated)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(out)
	for _, f := range r.File {
		if f.Name == backupEntryPath(b.Character, b.FileName()) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		ew, err := w.Create(f.Name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.Copy(ew, rc); err != nil {
			t.Fatal(err)
		}
		rc.Close()
	}
	r.Close()
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}

	_, err = NewImporter(nil).Import(newBranchStore(t), truncated, nil)
	if !errors.Is(err, errdefs.ErrCorruptArchive) {
		t.Errorf("err = %v, expected ErrCorruptArchive", err)
	}
}

func TestExportHoldsLeases(t *testing.T) {
	st := newBranchStore(t)
	b := createBackup(t, st, charThrall)

	// After a successful export the lease is released and deletion works.
	outPath := filepath.Join(t.TempDir(), "bundle.zip")
	if _, err := NewExporter(osfs.New(), nil).Export(st, nil, nil, outPath, nil); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if err := st.Delete(b.ID); err != nil {
		t.Errorf("Delete after export failed: %v", err)
	}
}
