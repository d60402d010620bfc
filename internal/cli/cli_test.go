package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zephh/chronobind/internal/adapters/addonmeta"
	"github.com/zephh/chronobind/internal/adapters/osfs"
	"github.com/zephh/chronobind/internal/archive"
	"github.com/zephh/chronobind/internal/chrono"
	"github.com/zephh/chronobind/internal/config"
	"github.com/zephh/chronobind/internal/store"
	"github.com/zephh/chronobind/internal/transfer"
)

// fakeConfigSvc returns a fixed config and records saves.
type fakeConfigSvc struct {
	cfg   *config.Config
	saved *config.Config
}

func (f *fakeConfigSvc) Load() (*config.Config, error)      { return f.cfg, nil }
func (f *fakeConfigSvc) Save(cfg *config.Config) error      { f.saved = cfg; return nil }
func (f *fakeConfigSvc) ConfigPath() string                 { return "/test/.chronobind/config.yaml" }
func (f *fakeConfigSvc) DefaultConfig() *config.Config      { return config.DefaultConfig() }

var cliChar = chrono.Character{Account: "ACC1", Realm: "Stormrage", Name: "Thrall"}

// newTestCLI builds a CLI over a temp branch with one populated character.
func newTestCLI(t *testing.T, args ...string) (*CLI, *bytes.Buffer, *bytes.Buffer, *transfer.Engine) {
	t.Helper()
	branch := chrono.Branch{Ident: chrono.BranchRetail, Label: "Retail", Root: t.TempDir()}

	liveDir := cliChar.ConfigPath(branch)
	if err := os.MkdirAll(liveDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(liveDir, "config-cache.wtf"), []byte("SET baseMip \"1\""), 0644); err != nil {
		t.Fatal(err)
	}

	fs := osfs.New()
	st := store.New(branch, fs, archive.New(), 10, nil)
	eng := transfer.New(st, fs, nil)

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	c := NewForTesting(out, errOut, append([]string{"chronobind"}, args...))
	c.ConfigSvc = &fakeConfigSvc{cfg: config.DefaultConfig()}
	c.NewEngine = func(cfg *config.Config, branchIdent string) (*transfer.Engine, error) {
		return eng, nil
	}
	return c, out, errOut, eng
}

func TestVersionCommand(t *testing.T) {
	c, out, _, _ := newTestCLI(t, "version")
	c.Run()
	if !strings.Contains(out.String(), "chronobind vtest") {
		t.Errorf("output = %q", out.String())
	}
}

func TestHelpCommand(t *testing.T) {
	c, out, _, _ := newTestCLI(t, "help")
	c.Run()
	for _, want := range []string{"backup", "paste", "export", "import", "pin"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("help output missing %q", want)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	c, _, errOut, _ := newTestCLI(t, "frobnicate")
	exitCode := -1
	c.Exit = func(code int) { exitCode = code }
	c.Run()

	if !strings.Contains(errOut.String(), "Unknown command: frobnicate") {
		t.Errorf("stderr = %q", errOut.String())
	}
	if exitCode != 1 {
		t.Errorf("exit code = %d, expected 1", exitCode)
	}
}

func TestNoCommand(t *testing.T) {
	c, out, _, _ := newTestCLI(t)
	c.Run()
	if !strings.Contains(out.String(), "No command specified") {
		t.Errorf("output = %q", out.String())
	}
}

func TestListCommand(t *testing.T) {
	c, out, _, _ := newTestCLI(t, "list")
	c.Run()
	if !strings.Contains(out.String(), "ACC1/Stormrage/Thrall") {
		t.Errorf("output = %q", out.String())
	}
}

func TestListCommandShowsAddonMetadata(t *testing.T) {
	c, out, _, eng := newTestCLI(t, "list")

	svDir := filepath.Join(eng.Store().Branch().ConfigDir(), chrono.AccountDirName, "ACC1", "SavedVariables")
	if err := os.MkdirAll(svDir, 0755); err != nil {
		t.Fatal(err)
	}
	saved := `["ACC1/Stormrage/Thrall"] = { class = "Shaman", level = 80 },`
	if err := os.WriteFile(filepath.Join(svDir, addonmeta.SavedVariablesFile), []byte(saved), 0644); err != nil {
		t.Fatal(err)
	}

	c.Run()
	if !strings.Contains(out.String(), "Lv80") || !strings.Contains(out.String(), "Shaman") {
		t.Errorf("output = %q", out.String())
	}
}

func TestBackupAndBackupsCommands(t *testing.T) {
	c, out, _, eng := newTestCLI(t, "backup", "ACC1/Stormrage/Thrall")
	c.Run()
	if !strings.Contains(out.String(), "Backed up ACC1/Stormrage/Thrall") {
		t.Fatalf("backup output = %q", out.String())
	}

	backups, err := eng.Store().List(cliChar)
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 1 {
		t.Fatalf("store has %d backups, expected 1", len(backups))
	}

	c2, out2, _, _ := newTestCLI(t, "backups", "ACC1/Stormrage/Thrall")
	c2.NewEngine = func(cfg *config.Config, branchIdent string) (*transfer.Engine, error) {
		return eng, nil
	}
	c2.Run()
	if !strings.Contains(out2.String(), backups[0].ID) {
		t.Errorf("backups output = %q, expected id %s", out2.String(), backups[0].ID)
	}
}

func TestBackupInvalidCharacter(t *testing.T) {
	c, _, errOut, _ := newTestCLI(t, "backup", "not-a-key")
	exitCode := -1
	c.Exit = func(code int) { exitCode = code }
	c.Run()

	if !strings.Contains(errOut.String(), "Invalid character") {
		t.Errorf("stderr = %q", errOut.String())
	}
	if exitCode != 1 {
		t.Errorf("exit code = %d", exitCode)
	}
}

func TestPinUnpinCommands(t *testing.T) {
	c, _, _, eng := newTestCLI(t, "backup", "ACC1/Stormrage/Thrall")
	c.Run()
	backups, err := eng.Store().List(cliChar)
	if err != nil || len(backups) != 1 {
		t.Fatalf("setup backup failed: %v", err)
	}
	id := backups[0].ID

	pin, out, _, _ := newTestCLI(t, "pin", id)
	pin.NewEngine = func(cfg *config.Config, branchIdent string) (*transfer.Engine, error) {
		return eng, nil
	}
	pin.Run()
	if !strings.Contains(out.String(), "Pinned backup "+id) {
		t.Errorf("pin output = %q", out.String())
	}

	got, err := eng.Store().List(cliChar)
	if err != nil {
		t.Fatal(err)
	}
	if !got[0].Pinned {
		t.Error("backup not pinned after pin command")
	}
}

func TestPasteCommand(t *testing.T) {
	c, out, _, eng := newTestCLI(t, "paste", "ACC1/Stormrage/Thrall", "ACC1/Stormrage/Jaina")

	// Populate the destination character.
	dst := chrono.Character{Account: "ACC1", Realm: "Stormrage", Name: "Jaina"}
	dstDir := dst.ConfigPath(eng.Store().Branch())
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dstDir, "config-cache.wtf"), []byte("SET baseMip \"0\""), 0644); err != nil {
		t.Fatal(err)
	}

	c.Run()
	if !strings.Contains(out.String(), "Pasted 1 paths") {
		t.Fatalf("paste output = %q", out.String())
	}

	// Destination file now matches the source.
	data, err := os.ReadFile(filepath.Join(dstDir, "config-cache.wtf"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "SET baseMip \"1\"" {
		t.Errorf("destination content = %q", data)
	}

	// A safety backup of the destination exists.
	backups, err := eng.Store().List(dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 1 || backups[0].Origin != chrono.OriginAutoPaste {
		t.Errorf("destination backups = %+v", backups)
	}
}

func TestExportImportCommands(t *testing.T) {
	c, _, _, eng := newTestCLI(t, "backup", "ACC1/Stormrage/Thrall")
	c.Run()

	bundlePath := filepath.Join(t.TempDir(), "bundle.zip")
	exp, out, _, _ := newTestCLI(t, "export", bundlePath)
	exp.NewEngine = func(cfg *config.Config, branchIdent string) (*transfer.Engine, error) {
		return eng, nil
	}
	exp.Run()
	if !strings.Contains(out.String(), "Exported bundle") {
		t.Fatalf("export output = %q", out.String())
	}

	imp, out2, _, other := newTestCLI(t, "import", bundlePath)
	_ = other // imports into its own fresh branch
	imp.Run()
	if !strings.Contains(out2.String(), "Imported 1 backups") {
		t.Errorf("import output = %q", out2.String())
	}
}

func TestDeleteCommandNotFound(t *testing.T) {
	c, _, errOut, _ := newTestCLI(t, "delete", "ffffffff")
	exitCode := -1
	c.Exit = func(code int) { exitCode = code }
	c.Run()

	if !strings.Contains(errOut.String(), "not found") {
		t.Errorf("stderr = %q", errOut.String())
	}
	if exitCode != 1 {
		t.Errorf("exit code = %d", exitCode)
	}
}

func TestConfigCommand(t *testing.T) {
	c, out, _, _ := newTestCLI(t, "config")
	c.Run()
	if !strings.Contains(out.String(), "Preferred branch: _retail_") {
		t.Errorf("config output = %q", out.String())
	}
	if !strings.Contains(out.String(), "Keep last:        10") {
		t.Errorf("config output = %q", out.String())
	}
}

func TestConfigInitCommand(t *testing.T) {
	c, out, _, _ := newTestCLI(t, "config", "init")
	svc := &fakeConfigSvc{cfg: config.DefaultConfig()}
	c.ConfigSvc = svc
	c.Run()

	if !strings.Contains(out.String(), "Created config at") {
		t.Errorf("output = %q", out.String())
	}
	if svc.saved == nil {
		t.Error("config was not saved")
	}
}
