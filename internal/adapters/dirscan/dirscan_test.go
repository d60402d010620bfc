package dirscan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zephh/chronobind/internal/chrono"
)

func TestInstallsFindsBranchesWithConfigTree(t *testing.T) {
	root := t.TempDir()

	// Retail with a WTF tree, classic without one, plus an unrelated dir.
	if err := os.MkdirAll(filepath.Join(root, chrono.BranchRetail, chrono.ConfigDirName), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, chrono.BranchClassic), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "Data"), 0755); err != nil {
		t.Fatal(err)
	}

	installs, err := New([]string{root}).Installs()
	if err != nil {
		t.Fatalf("Installs failed: %v", err)
	}
	if len(installs) != 1 {
		t.Fatalf("found %d installs, expected 1", len(installs))
	}
	if len(installs[0].Branches) != 1 {
		t.Fatalf("found %d branches, expected 1", len(installs[0].Branches))
	}
	if installs[0].Branches[0].Ident != chrono.BranchRetail {
		t.Errorf("branch = %q", installs[0].Branches[0].Ident)
	}
}

func TestInstallsSkipsEmptyRoots(t *testing.T) {
	installs, err := New([]string{t.TempDir(), "/does/not/exist"}).Installs()
	if err != nil {
		t.Fatalf("Installs failed: %v", err)
	}
	if len(installs) != 0 {
		t.Errorf("found %d installs, expected 0", len(installs))
	}
}

func TestInstallsConfigTreeMustBeDir(t *testing.T) {
	root := t.TempDir()
	branchRoot := filepath.Join(root, chrono.BranchRetail)
	if err := os.MkdirAll(branchRoot, 0755); err != nil {
		t.Fatal(err)
	}
	// A WTF file, not a directory.
	if err := os.WriteFile(filepath.Join(branchRoot, chrono.ConfigDirName), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	installs, err := New([]string{root}).Installs()
	if err != nil {
		t.Fatalf("Installs failed: %v", err)
	}
	if len(installs) != 0 {
		t.Errorf("found %d installs, expected 0", len(installs))
	}
}

func TestBranches(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, chrono.BranchClassicEra, chrono.ConfigDirName), 0755); err != nil {
		t.Fatal(err)
	}

	installs, err := New([]string{root}).Installs()
	if err != nil {
		t.Fatal(err)
	}
	branches := Branches(installs[0])
	if len(branches) != 1 {
		t.Fatalf("got %d branches", len(branches))
	}
	b := branches[0]
	if b.Ident != chrono.BranchClassicEra || b.Label != "Classic Era" {
		t.Errorf("branch = %+v", b)
	}
	if b.Root != filepath.Join(root, chrono.BranchClassicEra) {
		t.Errorf("branch root = %q", b.Root)
	}
}
