// Package bundle packages backups into portable export bundles and unpacks
// them into a backup store on another machine. A bundle is an ordinary zip:
// each backup archive stored under its Characters/<Account>/<Realm>/<Name>/
// path plus a top-level identity manifest, so the original addressing can be
// reconstructed on import.
package bundle

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/zephh/chronobind/internal/chrono"
	"github.com/zephh/chronobind/internal/errdefs"
	"github.com/zephh/chronobind/internal/manifest"
	"github.com/zephh/chronobind/internal/ports"
	"github.com/zephh/chronobind/internal/store"
)

// backupEntryPath returns the in-bundle path of a backup archive.
func backupEntryPath(char chrono.Character, fileName string) string {
	return path.Join(chrono.CharactersDirName, char.Account, char.Realm, char.Name, fileName)
}

// Exporter packages backups from a store into bundles.
type Exporter struct {
	fs  ports.FileSystem
	log *zap.Logger
}

// NewExporter creates an Exporter.
func NewExporter(fs ports.FileSystem, log *zap.Logger) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{fs: fs, log: log}
}

// Export writes a bundle to outPath. chars selects the scope: nil means the
// whole branch. ids further narrows to specific backups; nil means all
// backups in scope. Export holds read leases on the backups it copies, so a
// concurrent Delete fails with ErrInUse instead of pulling a file out from
// under the bundle.
func (e *Exporter) Export(st *store.Store, chars []chrono.Character, ids []string, outPath string, progress ports.ProgressFunc) (*manifest.Bundle, error) {
	if chars == nil {
		var err error
		chars, err = st.Characters()
		if err != nil {
			return nil, err
		}
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var backups []store.Backup
	for _, char := range chars {
		list, err := st.List(char)
		if err != nil {
			return nil, err
		}
		for _, b := range list {
			if len(wanted) > 0 && !wanted[b.ID] {
				continue
			}
			backups = append(backups, b)
		}
	}

	for _, b := range backups {
		if err := st.AcquireLease(b.ID); err != nil {
			return nil, err
		}
	}
	defer func() {
		for _, b := range backups {
			st.ReleaseLease(b.ID)
		}
	}()

	m := manifest.Bundle{
		BranchLabel: st.Branch().Label,
		ExportedAt:  time.Now(),
	}
	for _, b := range backups {
		m.Entries = append(m.Entries, manifest.BundleEntry{
			Account:   b.Character.Account,
			Realm:     b.Character.Realm,
			Character: b.Character.Name,
			CreatedAt: b.CreatedAt,
			File:      b.FileName(),
			Origin:    string(b.Origin),
			Pinned:    b.Pinned,
			SizeBytes: b.SizeBytes,
		})
	}

	if err := e.write(outPath, m, backups, progress); err != nil {
		_ = os.Remove(outPath)
		return nil, err
	}

	e.log.Info("exported bundle",
		zap.String("path", outPath),
		zap.String("branch", st.Branch().Label),
		zap.Int("backups", len(backups)))
	return &m, nil
}

func (e *Exporter) write(outPath string, m manifest.Bundle, backups []store.Backup, progress ports.ProgressFunc) error {
	out, err := e.fs.Create(outPath)
	if err != nil {
		return fmt.Errorf("%w: creating bundle: %v", errdefs.ErrIO, err)
	}

	w := zip.NewWriter(out)

	mw, err := w.Create(manifest.BundleEntryName)
	if err != nil {
		_ = w.Close()
		_ = out.Close()
		return fmt.Errorf("%w: starting bundle manifest: %v", errdefs.ErrEncoding, err)
	}
	if err := m.Encode(mw); err != nil {
		_ = w.Close()
		_ = out.Close()
		return fmt.Errorf("%w: writing bundle manifest: %v", errdefs.ErrEncoding, err)
	}

	total := len(backups)
	for i, b := range backups {
		// Backup archives are already compressed; store them as-is.
		header := &zip.FileHeader{
			Name:   backupEntryPath(b.Character, b.FileName()),
			Method: zip.Store,
		}
		ew, err := w.CreateHeader(header)
		if err != nil {
			_ = w.Close()
			_ = out.Close()
			return fmt.Errorf("%w: bundle entry %s: %v", errdefs.ErrEncoding, b.FileName(), err)
		}

		src, err := e.fs.Open(b.Path)
		if err != nil {
			_ = w.Close()
			_ = out.Close()
			return fmt.Errorf("%w: opening backup %s: %v", errdefs.ErrIO, b.ID, err)
		}
		_, copyErr := io.Copy(ew, src)
		_ = src.Close()
		if copyErr != nil {
			_ = w.Close()
			_ = out.Close()
			return fmt.Errorf("%w: bundling backup %s: %v", errdefs.ErrIO, b.ID, copyErr)
		}
		if progress != nil {
			progress(i+1, total)
		}
	}

	if err := w.Close(); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: closing bundle: %v", errdefs.ErrEncoding, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: closing bundle file: %v", errdefs.ErrEncoding, err)
	}
	return nil
}

// Conflict records one bundle entry skipped during import.
type Conflict struct {
	Entry manifest.BundleEntry
	Err   error
}

// ImportResult reports what an import created and which entries conflicted.
type ImportResult struct {
	Created   []store.Backup
	Conflicts []Conflict
}

// Importer unpacks bundles into a backup store.
type Importer struct {
	log *zap.Logger
}

// NewImporter creates an Importer.
func NewImporter(log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{log: log}
}

// Import re-creates each bundled backup under the target store at the
// bundle's saved identity, remapped onto the store's branch root. An entry
// whose identity and timestamp already exist is recorded as a conflict and
// skipped, never silently overwritten, and the import continues with the
// remaining entries.
func (i *Importer) Import(st *store.Store, bundlePath string, progress ports.ProgressFunc) (*ImportResult, error) {
	r, err := zip.OpenReader(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening bundle: %v", errdefs.ErrCorruptArchive, err)
	}
	defer func() { _ = r.Close() }()

	m, err := readBundleManifest(&r.Reader)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		byName[f.Name] = f
	}

	result := &ImportResult{}
	total := len(m.Entries)
	for idx, entry := range m.Entries {
		char := chrono.Character{Account: entry.Account, Realm: entry.Realm, Name: entry.Character}

		f, ok := byName[backupEntryPath(char, entry.File)]
		if !ok {
			return nil, fmt.Errorf("%w: bundle is missing entry %s", errdefs.ErrCorruptArchive, entry.File)
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: reading bundle entry %s: %v", errdefs.ErrCorruptArchive, entry.File, err)
		}
		created, err := st.ImportArchive(entry, rc)
		_ = rc.Close()

		switch {
		case errors.Is(err, errdefs.ErrImportConflict):
			i.log.Warn("skipped conflicting bundle entry",
				zap.String("character", char.Key()),
				zap.String("file", entry.File))
			result.Conflicts = append(result.Conflicts, Conflict{Entry: entry, Err: err})
		case err != nil:
			return nil, err
		default:
			result.Created = append(result.Created, *created)
		}

		if progress != nil {
			progress(idx+1, total)
		}
	}

	i.log.Info("imported bundle",
		zap.String("path", bundlePath),
		zap.Int("created", len(result.Created)),
		zap.Int("conflicts", len(result.Conflicts)))
	return result, nil
}

func readBundleManifest(r *zip.Reader) (manifest.Bundle, error) {
	for _, f := range r.File {
		if f.Name != manifest.BundleEntryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return manifest.Bundle{}, fmt.Errorf("%w: opening bundle manifest: %v", errdefs.ErrCorruptArchive, err)
		}
		defer func() { _ = rc.Close() }()

		m, err := manifest.DecodeBundle(rc)
		if err != nil {
			return manifest.Bundle{}, fmt.Errorf("%w: %v", errdefs.ErrCorruptArchive, err)
		}
		return m, nil
	}
	return manifest.Bundle{}, fmt.Errorf("%w: no bundle manifest entry", errdefs.ErrCorruptArchive)
}
