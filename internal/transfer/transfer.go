// Package transfer turns user intents (paste, backup, restore, delete,
// export, import) into task chains and executes their steps against the
// backup store and bundle layer. The paste path owns the safety-backup
// guarantee: the destination either ends fully updated to the source's
// selected files or exactly as it was before.
package transfer

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/zephh/chronobind/internal/bundle"
	"github.com/zephh/chronobind/internal/chrono"
	"github.com/zephh/chronobind/internal/errdefs"
	"github.com/zephh/chronobind/internal/ports"
	"github.com/zephh/chronobind/internal/store"
	"github.com/zephh/chronobind/internal/task"
)

// Engine binds the store, filesystem and bundle layer behind the task
// executor's step contract.
type Engine struct {
	store    *store.Store
	fs       ports.FileSystem
	exporter *bundle.Exporter
	importer *bundle.Importer
	log      *zap.Logger
}

// New creates an Engine for one branch's store.
func New(st *store.Store, fs ports.FileSystem, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:    st,
		fs:       fs,
		exporter: bundle.NewExporter(fs, log),
		importer: bundle.NewImporter(log),
		log:      log,
	}
}

// Store returns the engine's backup store.
func (e *Engine) Store() *store.Store { return e.store }

// Paste builds the two-step paste chain: a safety backup of the destination
// followed by the copy. An empty selection builds an empty chain that
// completes vacuously, so the UI needs no special case.
func (e *Engine) Paste(src, dst chrono.Character, sel chrono.Selection) *task.Chain {
	label := fmt.Sprintf("Paste %s -> %s", src.Name, dst.Name)
	if sel.Empty() {
		return task.NewChain(label)
	}
	return task.NewChain(label,
		task.Step{
			Kind:      task.KindSafetyBackup,
			Label:     "Backing up destination files",
			Dest:      dst,
			Selection: sel,
		},
		task.Step{
			Kind:      task.KindCopyFiles,
			Label:     "Pasting character files",
			Source:    src,
			Dest:      dst,
			Selection: sel,
		},
	)
}

// Backup builds a manual backup chain.
func (e *Engine) Backup(char chrono.Character, sel chrono.Selection, pinned bool) *task.Chain {
	return task.NewChain(fmt.Sprintf("Backup %s", char.Name),
		task.Step{
			Kind:      task.KindCreateBackup,
			Label:     "Backing up files",
			Dest:      char,
			Selection: sel,
			Origin:    chrono.OriginManual,
			Pinned:    pinned,
		},
	)
}

// Restore builds a restore chain for one backup.
func (e *Engine) Restore(backupID string) *task.Chain {
	return task.NewChain("Restore backup",
		task.Step{
			Kind:     task.KindRestoreBackup,
			Label:    "Restoring backup",
			BackupID: backupID,
		},
	)
}

// Delete builds a deletion chain for one backup.
func (e *Engine) Delete(backupID string) *task.Chain {
	return task.NewChain("Delete backup",
		task.Step{
			Kind:     task.KindDeleteBackup,
			Label:    "Deleting backup",
			BackupID: backupID,
		},
	)
}

// Export builds an export chain. chars nil means the whole branch; ids nil
// means every backup in scope.
func (e *Engine) Export(chars []chrono.Character, ids []string, outPath string) *task.Chain {
	return task.NewChain("Export backups",
		task.Step{
			Kind:       task.KindExportBundle,
			Label:      "Exporting backups",
			Characters: chars,
			BackupIDs:  ids,
			BundlePath: outPath,
		},
	)
}

// Import builds an import chain for a bundle file.
func (e *Engine) Import(bundlePath string) *task.Chain {
	return task.NewChain("Import bundle",
		task.Step{
			Kind:       task.KindImportBundle,
			Label:      "Importing bundle",
			BundlePath: bundlePath,
		},
	)
}

// RunStep dispatches the closed set of step kinds. Each arm either fully
// commits or rolls back before returning an error.
func (e *Engine) RunStep(chain *task.Chain, stepIndex int, step task.Step, progress func(done, total int)) (task.Result, error) {
	switch step.Kind {
	case task.KindSafetyBackup:
		return e.runSafetyBackup(step, progress)
	case task.KindCopyFiles:
		return e.runCopy(chain, stepIndex, step, progress)
	case task.KindCreateBackup:
		b, err := e.store.Create(step.Dest, step.Selection, step.Origin, step.Pinned, progress)
		if err != nil {
			return task.Result{}, err
		}
		return task.Result{BackupID: b.ID, Done: len(step.Selection.Paths), Total: len(step.Selection.Paths)}, nil
	case task.KindRestoreBackup:
		n, err := e.store.Restore(step.BackupID, progress)
		if err != nil {
			return task.Result{}, err
		}
		return task.Result{BackupID: step.BackupID, Done: n, Total: n}, nil
	case task.KindDeleteBackup:
		if err := e.store.Delete(step.BackupID); err != nil {
			return task.Result{}, err
		}
		return task.Result{BackupID: step.BackupID, Done: 1, Total: 1}, nil
	case task.KindExportBundle:
		m, err := e.exporter.Export(e.store, step.Characters, step.BackupIDs, step.BundlePath, progress)
		if err != nil {
			return task.Result{}, err
		}
		return task.Result{Done: len(m.Entries), Total: len(m.Entries)}, nil
	case task.KindImportBundle:
		res, err := e.importer.Import(e.store, step.BundlePath, progress)
		if err != nil {
			return task.Result{}, err
		}
		r := task.Result{Done: len(res.Created), Total: len(res.Created) + len(res.Conflicts)}
		for _, c := range res.Conflicts {
			r.Conflicts = append(r.Conflicts, c.Err)
		}
		return r, nil
	default:
		return task.Result{}, fmt.Errorf("unknown step kind %d", step.Kind)
	}
}

// runSafetyBackup snapshots the destination's current files for the
// selection before they are overwritten. Only paths that exist at the
// destination are captured; the copy step removes any files it newly
// created when rolling back, so together the two cover every path the paste
// touches.
func (e *Engine) runSafetyBackup(step task.Step, progress func(done, total int)) (task.Result, error) {
	destRoot := step.Dest.ConfigPath(e.store.Branch())

	existing := chrono.Selection{Name: step.Selection.Name}
	for _, rel := range step.Selection.Paths {
		if _, err := e.fs.Stat(filepath.Join(destRoot, rel)); err == nil {
			existing.Paths = append(existing.Paths, rel)
		}
	}

	b, err := e.store.Create(step.Dest, existing, chrono.OriginAutoPaste, false, progress)
	if err != nil {
		return task.Result{}, fmt.Errorf("%w: %v", errdefs.ErrBackupFailed, err)
	}
	e.log.Info("took safety backup",
		zap.String("character", step.Dest.Key()),
		zap.String("backup", b.ID))
	return task.Result{BackupID: b.ID, Done: len(existing.Paths), Total: len(existing.Paths)}, nil
}

// runCopy copies the selection from source onto destination. On a mid-copy
// failure the destination is rolled back (files newly created by this step
// are removed, then the safety backup is restored) before ErrTransferFailed
// surfaces, so the destination is never left in a mixed state.
func (e *Engine) runCopy(chain *task.Chain, stepIndex int, step task.Step, progress func(done, total int)) (task.Result, error) {
	srcRoot := step.Source.ConfigPath(e.store.Branch())
	dstRoot := step.Dest.ConfigPath(e.store.Branch())

	var created []string
	rollback := func(cause error) error {
		for i := len(created) - 1; i >= 0; i-- {
			_ = e.fs.Remove(created[i])
		}
		if stepIndex > 0 {
			if safety := chain.Result(stepIndex - 1).BackupID; safety != "" {
				if _, err := e.store.Restore(safety, nil); err != nil {
					e.log.Error("rollback restore failed",
						zap.String("backup", safety), zap.Error(err))
				}
			}
		}
		return fmt.Errorf("%w: %v", errdefs.ErrTransferFailed, cause)
	}

	files, err := e.resolveFiles(srcRoot, step.Selection.Paths)
	if err != nil {
		return task.Result{}, rollback(err)
	}

	total := len(files)
	for i, rel := range files {
		srcPath := filepath.Join(srcRoot, rel)
		dstPath := filepath.Join(dstRoot, rel)

		_, statErr := e.fs.Stat(dstPath)
		isNew := os.IsNotExist(statErr)

		if err := e.copyFile(srcPath, dstPath); err != nil {
			return task.Result{}, rollback(err)
		}
		if isNew {
			created = append(created, dstPath)
		}

		e.log.Info("copied file",
			zap.String("file", rel),
			zap.String("to", step.Dest.Key()))
		if progress != nil {
			progress(i+1, total)
		}
	}

	return task.Result{Done: total, Total: total}, nil
}

// resolveFiles expands selection paths into the ordered file list under root.
func (e *Engine) resolveFiles(root string, selection []string) ([]string, error) {
	var files []string
	for _, rel := range selection {
		path := filepath.Join(root, rel)
		info, err := e.fs.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("selected path %s: %w", rel, err)
		}

		if !info.IsDir() {
			files = append(files, rel)
			continue
		}

		err = e.fs.Walk(path, func(p string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return nil
			}
			sub, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			files = append(files, sub)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", rel, err)
		}
	}
	return files, nil
}

// copyFile copies one file, creating missing parent directories.
func (e *Engine) copyFile(srcPath, dstPath string) error {
	data, err := e.fs.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(srcPath), err)
	}
	if err := e.fs.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("creating parent for %s: %w", filepath.Base(dstPath), err)
	}
	if err := e.fs.WriteFile(dstPath, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(dstPath), err)
	}
	return nil
}

// Compile-time check that Engine implements task.Runner.
var _ task.Runner = (*Engine)(nil)
