// Package cli provides the command-line interface with injectable io.Writer for testing.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/zephh/chronobind/internal/adapters/addonmeta"
	"github.com/zephh/chronobind/internal/adapters/osfs"
	"github.com/zephh/chronobind/internal/app"
	"github.com/zephh/chronobind/internal/chrono"
	"github.com/zephh/chronobind/internal/config"
	"github.com/zephh/chronobind/internal/task"
	"github.com/zephh/chronobind/internal/transfer"
)

// ConfigService provides configuration operations for the CLI.
type ConfigService interface {
	Load() (*config.Config, error)
	Save(cfg *config.Config) error
	ConfigPath() string
	DefaultConfig() *config.Config
}

// EngineFactory builds a transfer engine for the branch the CLI operates on.
type EngineFactory func(cfg *config.Config, branchIdent string) (*transfer.Engine, error)

// CLI represents the command-line interface with injectable dependencies.
type CLI struct {
	Out     io.Writer // Standard output
	Err     io.Writer // Standard error
	Version string    // Application version
	Args    []string  // Command arguments (like os.Args)

	// Exit function for testability (defaults to os.Exit)
	Exit func(code int)

	// Injectable dependencies (nil means use defaults)
	ConfigSvc ConfigService
	NewEngine EngineFactory

	// Color functions (can be disabled for testing)
	green  func(a ...interface{}) string
	yellow func(a ...interface{}) string
	cyan   func(a ...interface{}) string
	gray   func(a ...interface{}) string
	red    func(a ...interface{}) string
}

// New creates a new CLI with default settings.
func New(version string) *CLI {
	return &CLI{
		Out:     os.Stdout,
		Err:     os.Stderr,
		Version: version,
		Args:    os.Args,
		Exit:    os.Exit,
		green:   color.New(color.FgGreen, color.Bold).SprintFunc(),
		yellow:  color.New(color.FgYellow).SprintFunc(),
		cyan:    color.New(color.FgCyan).SprintFunc(),
		gray:    color.New(color.FgHiBlack).SprintFunc(),
		red:     color.New(color.FgRed).SprintFunc(),
	}
}

// NewForTesting creates a CLI configured for testing (no colors, captured output).
func NewForTesting(out, errOut io.Writer, args []string) *CLI {
	noColor := func(a ...interface{}) string { return fmt.Sprint(a...) }
	exitCode := 0
	return &CLI{
		Out:     out,
		Err:     errOut,
		Version: "test",
		Args:    args,
		Exit:    func(code int) { exitCode = code; _ = exitCode },
		green:   noColor,
		yellow:  noColor,
		cyan:    noColor,
		gray:    noColor,
		red:     noColor,
	}
}

// defaultConfigService wraps the config package functions.
type defaultConfigService struct{}

func (d *defaultConfigService) Load() (*config.Config, error)  { return config.Load() }
func (d *defaultConfigService) Save(cfg *config.Config) error  { return cfg.Save() }
func (d *defaultConfigService) ConfigPath() string             { return config.ConfigPath() }
func (d *defaultConfigService) DefaultConfig() *config.Config  { return config.DefaultConfig() }

func (c *CLI) configSvc() ConfigService {
	if c.ConfigSvc != nil {
		return c.ConfigSvc
	}
	return &defaultConfigService{}
}

func (c *CLI) engine(cfg *config.Config, branchIdent string) (*transfer.Engine, error) {
	if c.NewEngine != nil {
		return c.NewEngine(cfg, branchIdent)
	}
	return app.BuildEngine(cfg, branchIdent)
}

// Run executes the CLI with the configured arguments.
func (c *CLI) Run() {
	if len(c.Args) < 2 {
		fmt.Fprintln(c.Out, "No command specified. Use 'chronobind help' for usage.")
		return
	}

	switch c.Args[1] {
	case "list":
		c.ListCharacters()
	case "backups":
		c.ListBackups()
	case "backup":
		c.RunBackup()
	case "restore":
		c.RunRestore()
	case "delete":
		c.RunDelete()
	case "pin":
		c.SetPin(true)
	case "unpin":
		c.SetPin(false)
	case "paste":
		c.RunPaste()
	case "export":
		c.RunExport()
	case "import":
		c.RunImport()
	case "config":
		c.ShowConfig()
	case "version", "-v", "--version":
		fmt.Fprintf(c.Out, "chronobind v%s\n", c.Version)
	case "help", "-h", "--help":
		c.PrintUsage()
	default:
		fmt.Fprintf(c.Err, "Unknown command: %s\n", c.Args[1])
		c.PrintUsage()
		c.Exit(1)
	}
}

// PrintUsage prints the help message.
func (c *CLI) PrintUsage() {
	fmt.Fprintln(c.Out, `chronobind - Character Config Backup & Transfer

Usage:
  chronobind                               Launch interactive TUI
  chronobind list                          List characters on the branch
  chronobind backups <Account/Realm/Name>  List a character's backups
  chronobind backup <Account/Realm/Name> [--pin] [path ...]
                                           Back up a character (whole config tree by default)
  chronobind restore <backup-id>           Restore a backup onto the live tree
  chronobind delete <backup-id>            Delete a backup
  chronobind pin <backup-id>               Exempt a backup from retention eviction
  chronobind unpin <backup-id>             Clear a backup's pin
  chronobind paste <src> <dst> [path ...]  Copy config between characters (safety backup first)
  chronobind export <out.zip> [char ...]   Export backups as a portable bundle
  chronobind import <bundle.zip>           Import a bundle's backups
  chronobind config [init]                 Show (or create) the config file
  chronobind version, -v                   Show version
  chronobind help, -h                      Show this help

Branch selection: --branch=_retail_ (default from config)
Config: ~/.chronobind/config.yaml`)
}

// parseCharKey splits an Account/Realm/Name argument.
func parseCharKey(arg string) (chrono.Character, bool) {
	parts := strings.Split(arg, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return chrono.Character{}, false
	}
	return chrono.Character{Account: parts[0], Realm: parts[1], Name: parts[2]}, true
}

// branchFlag extracts --branch= from the arguments, returning the remainder.
func branchFlag(args []string) (string, []string) {
	branch := ""
	rest := make([]string, 0, len(args))
	for _, arg := range args {
		if strings.HasPrefix(arg, "--branch=") {
			branch = strings.TrimPrefix(arg, "--branch=")
			continue
		}
		rest = append(rest, arg)
	}
	return branch, rest
}

// setup loads config and builds the engine for the branch named in args.
func (c *CLI) setup(args []string) (*transfer.Engine, *config.Config, []string, bool) {
	cfg, err := c.configSvc().Load()
	if err != nil {
		fmt.Fprintf(c.Err, "Error loading config: %v\n", err)
		c.Exit(1)
		return nil, nil, nil, false
	}
	branch, rest := branchFlag(args)
	eng, err := c.engine(cfg, branch)
	if err != nil {
		fmt.Fprintf(c.Err, "Error: %v\n", err)
		c.Exit(1)
		return nil, nil, nil, false
	}
	return eng, cfg, rest, true
}

// runChain submits a chain and renders its events until it terminates.
// Returns true when the chain completed.
func (c *CLI) runChain(eng *transfer.Engine, chain *task.Chain) bool {
	exec := task.NewExecutor(eng, nil)
	defer exec.Close()

	exec.Submit(chain)
	for ev := range exec.Events() {
		if ev.Terminal {
			switch ev.State {
			case task.StateCompleted:
				return true
			case task.StateCancelled:
				fmt.Fprintf(c.Out, "%s Cancelled\n", c.yellow("!"))
				return false
			default:
				fmt.Fprintf(c.Err, "%s %v\n", c.red("x"), ev.Err)
				return false
			}
		}
		if ev.Total > 0 {
			fmt.Fprintf(c.Out, "  %s %s (%d/%d)\n", c.cyan("=>"), ev.Label, ev.Done, ev.Total)
		}
	}
	return false
}

// wholeTreeSelection selects everything directly under the character's live
// config directory.
func wholeTreeSelection(eng *transfer.Engine, char chrono.Character) (chrono.Selection, error) {
	sel := chrono.Selection{Name: "All"}
	entries, err := os.ReadDir(char.ConfigPath(eng.Store().Branch()))
	if err != nil {
		return sel, err
	}
	for _, entry := range entries {
		sel.Paths = append(sel.Paths, entry.Name())
	}
	return sel, nil
}

// ListCharacters lists the characters present on the branch's live tree.
func (c *CLI) ListCharacters() {
	eng, cfg, _, ok := c.setup(c.Args[2:])
	if !ok {
		return
	}

	chars, err := chrono.ScanCharacters(osfs.New(), eng.Store().Branch())
	if err != nil {
		fmt.Fprintf(c.Err, "Error: %v\n", err)
		c.Exit(1)
		return
	}
	if len(chars) == 0 {
		fmt.Fprintln(c.Out, "No characters found.")
		return
	}

	meta := addonmeta.New(osfs.New(), eng.Store().Branch())

	fmt.Fprintf(c.Out, "Characters on %s:\n\n", c.cyan(eng.Store().Branch().Label))
	for _, char := range chars {
		backups, _ := eng.Store().List(char)
		note := ""
		if class, level, ok := meta.Meta(char.Key()); ok {
			if cfg.DisplayCharacterLevels {
				note += fmt.Sprintf(" Lv%d", level)
			}
			if cfg.ShowFriendlyNames && class != "" {
				note += " " + class
			}
		}
		fmt.Fprintf(c.Out, "  %s %s%s %s\n",
			c.green("*"),
			char.Key(),
			c.yellow(note),
			c.gray(fmt.Sprintf("(%d backups)", len(backups))))
	}
}

// ListBackups lists all backups for a character.
func (c *CLI) ListBackups() {
	eng, _, rest, ok := c.setup(c.Args[2:])
	if !ok {
		return
	}
	if len(rest) < 1 {
		fmt.Fprintln(c.Out, "Usage: chronobind backups <Account/Realm/Name>")
		c.Exit(1)
		return
	}
	char, ok := parseCharKey(rest[0])
	if !ok {
		fmt.Fprintf(c.Err, "Invalid character %q (want Account/Realm/Name)\n", rest[0])
		c.Exit(1)
		return
	}

	backups, err := eng.Store().List(char)
	if err != nil {
		fmt.Fprintf(c.Err, "Error: %v\n", err)
		c.Exit(1)
		return
	}
	if len(backups) == 0 {
		fmt.Fprintf(c.Out, "No backups found for %s\n", char.Key())
		return
	}

	fmt.Fprintf(c.Out, "Backups for %s:\n\n", c.cyan(char.Key()))
	fmt.Fprintf(c.Out, "  %-10s %-17s %10s %-14s %s\n", "ID", "CREATED", "SIZE", "ORIGIN", "PINNED")
	for _, b := range backups {
		pinned := c.gray("-")
		if b.Pinned {
			pinned = c.yellow("pinned")
		}
		fmt.Fprintf(c.Out, "  %-10s %-17s %10s %-14s %s\n",
			b.ID,
			b.CreatedAt.Format(chrono.DisplayTimeFormat),
			humanize.Bytes(uint64(b.SizeBytes)),
			string(b.Origin),
			pinned)
	}
}

// RunBackup backs up a character.
func (c *CLI) RunBackup() {
	eng, _, rest, ok := c.setup(c.Args[2:])
	if !ok {
		return
	}
	if len(rest) < 1 {
		fmt.Fprintln(c.Out, "Usage: chronobind backup <Account/Realm/Name> [--pin] [path ...]")
		c.Exit(1)
		return
	}
	char, ok := parseCharKey(rest[0])
	if !ok {
		fmt.Fprintf(c.Err, "Invalid character %q (want Account/Realm/Name)\n", rest[0])
		c.Exit(1)
		return
	}

	pinned := false
	var paths []string
	for _, arg := range rest[1:] {
		if arg == "--pin" {
			pinned = true
			continue
		}
		paths = append(paths, arg)
	}

	sel := chrono.Selection{Name: "Custom", Paths: paths}
	if len(paths) == 0 {
		var err error
		sel, err = wholeTreeSelection(eng, char)
		if err != nil {
			fmt.Fprintf(c.Err, "Error reading character config: %v\n", err)
			c.Exit(1)
			return
		}
	}

	if c.runChain(eng, eng.Backup(char, sel, pinned)) {
		fmt.Fprintf(c.Out, "%s Backed up %s\n", c.green("*"), char.Key())
	} else {
		c.Exit(1)
	}
}

// RunRestore restores a backup onto its character's live tree.
func (c *CLI) RunRestore() {
	eng, _, rest, ok := c.setup(c.Args[2:])
	if !ok {
		return
	}
	if len(rest) < 1 {
		fmt.Fprintln(c.Out, "Usage: chronobind restore <backup-id>")
		c.Exit(1)
		return
	}

	if c.runChain(eng, eng.Restore(rest[0])) {
		fmt.Fprintf(c.Out, "%s Restored backup %s\n", c.green("*"), rest[0])
	} else {
		c.Exit(1)
	}
}

// RunDelete deletes a backup.
func (c *CLI) RunDelete() {
	eng, _, rest, ok := c.setup(c.Args[2:])
	if !ok {
		return
	}
	if len(rest) < 1 {
		fmt.Fprintln(c.Out, "Usage: chronobind delete <backup-id>")
		c.Exit(1)
		return
	}

	if c.runChain(eng, eng.Delete(rest[0])) {
		fmt.Fprintf(c.Out, "%s Deleted backup %s\n", c.yellow("-"), rest[0])
	} else {
		c.Exit(1)
	}
}

// SetPin pins or unpins a backup.
func (c *CLI) SetPin(pin bool) {
	eng, _, rest, ok := c.setup(c.Args[2:])
	if !ok {
		return
	}
	if len(rest) < 1 {
		fmt.Fprintf(c.Out, "Usage: chronobind %s <backup-id>\n", c.Args[1])
		c.Exit(1)
		return
	}

	var err error
	if pin {
		err = eng.Store().Pin(rest[0])
	} else {
		err = eng.Store().Unpin(rest[0])
	}
	if err != nil {
		fmt.Fprintf(c.Err, "Error: %v\n", err)
		c.Exit(1)
		return
	}
	if pin {
		fmt.Fprintf(c.Out, "%s Pinned backup %s\n", c.green("*"), rest[0])
	} else {
		fmt.Fprintf(c.Out, "%s Unpinned backup %s\n", c.yellow("-"), rest[0])
	}
}

// RunPaste copies configuration from one character onto another, taking a
// safety backup of the destination first.
func (c *CLI) RunPaste() {
	eng, _, rest, ok := c.setup(c.Args[2:])
	if !ok {
		return
	}
	if len(rest) < 2 {
		fmt.Fprintln(c.Out, "Usage: chronobind paste <src Account/Realm/Name> <dst Account/Realm/Name> [path ...]")
		c.Exit(1)
		return
	}
	src, okSrc := parseCharKey(rest[0])
	dst, okDst := parseCharKey(rest[1])
	if !okSrc || !okDst {
		fmt.Fprintln(c.Err, "Invalid character (want Account/Realm/Name)")
		c.Exit(1)
		return
	}

	sel := chrono.Selection{Name: "Custom", Paths: rest[2:]}
	if sel.Empty() {
		var err error
		sel, err = wholeTreeSelection(eng, src)
		if err != nil {
			fmt.Fprintf(c.Err, "Error reading source config: %v\n", err)
			c.Exit(1)
			return
		}
	}

	fmt.Fprintf(c.Out, "Pasting %s onto %s...\n", c.cyan(src.Name), c.cyan(dst.Name))
	if c.runChain(eng, eng.Paste(src, dst, sel)) {
		fmt.Fprintf(c.Out, "%s Pasted %d paths (safety backup taken)\n", c.green("*"), len(sel.Paths))
	} else {
		c.Exit(1)
	}
}

// RunExport writes selected backups into a portable bundle.
func (c *CLI) RunExport() {
	eng, _, rest, ok := c.setup(c.Args[2:])
	if !ok {
		return
	}
	if len(rest) < 1 {
		fmt.Fprintln(c.Out, "Usage: chronobind export <out.zip> [Account/Realm/Name ...]")
		c.Exit(1)
		return
	}

	var chars []chrono.Character
	for _, arg := range rest[1:] {
		char, ok := parseCharKey(arg)
		if !ok {
			fmt.Fprintf(c.Err, "Invalid character %q (want Account/Realm/Name)\n", arg)
			c.Exit(1)
			return
		}
		chars = append(chars, char)
	}

	if c.runChain(eng, eng.Export(chars, nil, rest[0])) {
		fmt.Fprintf(c.Out, "%s Exported bundle to %s\n", c.green("*"), rest[0])
	} else {
		c.Exit(1)
	}
}

// RunImport imports a bundle's backups into the branch's store.
func (c *CLI) RunImport() {
	eng, _, rest, ok := c.setup(c.Args[2:])
	if !ok {
		return
	}
	if len(rest) < 1 {
		fmt.Fprintln(c.Out, "Usage: chronobind import <bundle.zip>")
		c.Exit(1)
		return
	}

	chain := eng.Import(rest[0])
	if !c.runChain(eng, chain) {
		c.Exit(1)
		return
	}

	res := chain.Result(0)
	fmt.Fprintf(c.Out, "%s Imported %d backups\n", c.green("*"), res.Done)
	for _, conflict := range res.Conflicts {
		fmt.Fprintf(c.Out, "  %s skipped: %v\n", c.yellow("!"), conflict)
	}
}

// ShowConfig shows or initializes the configuration file.
func (c *CLI) ShowConfig() {
	svc := c.configSvc()

	if len(c.Args) > 2 && c.Args[2] == "init" {
		if err := svc.Save(svc.DefaultConfig()); err != nil {
			fmt.Fprintf(c.Err, "Error saving config: %v\n", err)
			c.Exit(1)
			return
		}
		fmt.Fprintf(c.Out, "Created config at %s\n", svc.ConfigPath())
		return
	}

	cfg, err := svc.Load()
	if err != nil {
		fmt.Fprintf(c.Err, "Error loading config: %v\n", err)
		c.Exit(1)
		return
	}

	fmt.Fprintln(c.Out, "chronobind config:")
	fmt.Fprintf(c.Out, "  Config file:      %s\n", svc.ConfigPath())
	fmt.Fprintf(c.Out, "  Preferred branch: %s\n", cfg.PreferredBranch)
	fmt.Fprintf(c.Out, "  Install roots:    %s\n", strings.Join(cfg.InstallRoots, ", "))
	fmt.Fprintf(c.Out, "  Keep last:        %d unpinned backups per character\n", cfg.Retention.KeepLast)
	if cfg.LogFile != "" {
		fmt.Fprintf(c.Out, "  Log file:         %s\n", cfg.LogFile)
	}
}
