// Package dirscan provides a minimal install discovery adapter: it checks a
// configured list of candidate client roots for known branch directories
// that carry a configuration tree. Full launcher-database detection is the
// discovery collaborator's business, not the engine's.
package dirscan

import (
	"os"
	"path/filepath"

	"github.com/zephh/chronobind/internal/chrono"
	"github.com/zephh/chronobind/internal/ports"
)

// knownBranches are the branch directory names probed under each root.
var knownBranches = []string{
	chrono.BranchRetail,
	chrono.BranchClassic,
	chrono.BranchClassicEra,
}

// Scanner implements ports.Discovery over a fixed set of candidate roots.
type Scanner struct {
	Roots []string
}

// New creates a Scanner for the given candidate install roots.
func New(roots []string) *Scanner {
	return &Scanner{Roots: roots}
}

// Installs probes each candidate root for branch directories containing a
// configuration tree and returns those found, in configuration order.
func (s *Scanner) Installs() ([]ports.Install, error) {
	var installs []ports.Install
	for _, root := range s.Roots {
		var branches []ports.BranchRef
		for _, ident := range knownBranches {
			branchRoot := filepath.Join(root, ident)
			if info, err := os.Stat(filepath.Join(branchRoot, chrono.ConfigDirName)); err != nil || !info.IsDir() {
				continue
			}
			branches = append(branches, ports.BranchRef{Ident: ident, Root: branchRoot})
		}
		if len(branches) > 0 {
			installs = append(installs, ports.Install{Root: root, Branches: branches})
		}
	}
	return installs, nil
}

// Branches converts an install's branch refs into domain branches.
func Branches(in ports.Install) []chrono.Branch {
	branches := make([]chrono.Branch, 0, len(in.Branches))
	for _, ref := range in.Branches {
		branches = append(branches, chrono.Branch{
			Ident: ref.Ident,
			Label: chrono.BranchLabel(ref.Ident),
			Root:  ref.Root,
		})
	}
	return branches
}

// Compile-time check that Scanner implements ports.Discovery.
var _ ports.Discovery = (*Scanner)(nil)
