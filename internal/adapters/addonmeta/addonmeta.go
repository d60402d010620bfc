// Package addonmeta reads advisory character metadata (class, level) from
// the companion in-game addon's SavedVariables files. The data is purely
// display sugar; a missing or stale file just yields no metadata.
package addonmeta

import (
	"bufio"
	"bytes"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	"github.com/zephh/chronobind/internal/chrono"
	"github.com/zephh/chronobind/internal/ports"
)

// SavedVariablesFile is the addon's per-account data file name.
const SavedVariablesFile = "ChronoBind.lua"

// entryPattern matches one character record in the saved data, e.g.
//
//	["ACC1/Stormrage/Thrall"] = { class = "Shaman", level = 80 },
var entryPattern = regexp.MustCompile(`\["([^"]+)"\]\s*=\s*\{\s*class\s*=\s*"([^"]*)"\s*,\s*level\s*=\s*(\d+)`)

type meta struct {
	class string
	level int
}

// Reader implements ports.AddonReader over a branch's SavedVariables files.
// The files are read once, on first use.
type Reader struct {
	fs     ports.FileSystem
	branch chrono.Branch

	once sync.Once
	data map[string]meta
}

// New creates a Reader for one branch.
func New(fs ports.FileSystem, branch chrono.Branch) *Reader {
	return &Reader{fs: fs, branch: branch}
}

// Meta returns class and level for a character key, or ok=false when the
// addon has no data for it.
func (r *Reader) Meta(characterKey string) (string, int, bool) {
	r.once.Do(r.load)
	m, ok := r.data[characterKey]
	if !ok {
		return "", 0, false
	}
	return m.class, m.level, true
}

// load scans every account's SavedVariables file. Parse errors are treated
// as absent data, never surfaced.
func (r *Reader) load() {
	r.data = make(map[string]meta)

	accountRoot := filepath.Join(r.branch.ConfigDir(), chrono.AccountDirName)
	entries, err := r.fs.ReadDir(accountRoot)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(accountRoot, entry.Name(), "SavedVariables", SavedVariablesFile)
		contents, err := r.fs.ReadFile(path)
		if err != nil {
			continue
		}
		r.parse(contents)
	}
}

func (r *Reader) parse(contents []byte) {
	scanner := bufio.NewScanner(bytes.NewReader(contents))
	for scanner.Scan() {
		m := entryPattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		level, err := strconv.Atoi(m[3])
		if err != nil {
			continue
		}
		r.data[m[1]] = meta{class: m[2], level: level}
	}
}

// Compile-time check that Reader implements ports.AddonReader.
var _ ports.AddonReader = (*Reader)(nil)
