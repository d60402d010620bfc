// Package app wires the engine together from configuration: branch
// discovery, filesystem, codec, store, logging. Both front ends build their
// engine here.
package app

import (
	"fmt"

	"github.com/zephh/chronobind/internal/adapters/dirscan"
	"github.com/zephh/chronobind/internal/adapters/osfs"
	"github.com/zephh/chronobind/internal/archive"
	"github.com/zephh/chronobind/internal/config"
	"github.com/zephh/chronobind/internal/logging"
	"github.com/zephh/chronobind/internal/ports"
	"github.com/zephh/chronobind/internal/store"
	"github.com/zephh/chronobind/internal/transfer"
)

// BuildEngine discovers the requested branch under the configured install
// roots and assembles a transfer engine for it. An empty branchIdent falls
// back to the configured preferred branch.
func BuildEngine(cfg *config.Config, branchIdent string) (*transfer.Engine, error) {
	roots := make([]string, 0, len(cfg.InstallRoots))
	for _, root := range cfg.InstallRoots {
		roots = append(roots, config.ExpandPath(root))
	}
	return BuildEngineWith(cfg, branchIdent, dirscan.New(roots))
}

// BuildEngineWith is BuildEngine with an injectable discovery collaborator.
func BuildEngineWith(cfg *config.Config, branchIdent string, disc ports.Discovery) (*transfer.Engine, error) {
	if branchIdent == "" {
		branchIdent = cfg.PreferredBranch
	}

	installs, err := disc.Installs()
	if err != nil {
		return nil, err
	}
	for _, install := range installs {
		for _, branch := range dirscan.Branches(install) {
			if branch.Ident != branchIdent {
				continue
			}
			log, err := logging.New(config.ExpandPath(cfg.LogFile))
			if err != nil {
				return nil, err
			}
			fs := osfs.New()
			st := store.New(branch, fs, archive.New(), cfg.Retention.KeepLast, log)
			return transfer.New(st, fs, log), nil
		}
	}
	return nil, fmt.Errorf("branch %s not found under configured install roots", branchIdent)
}
