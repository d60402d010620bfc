// Package archive implements the backup archive codec: plain zip containers
// with an embedded JSON manifest, so any general-purpose archive tool can
// open a backup and the backup describes itself without an external index.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zephh/chronobind/internal/errdefs"
	"github.com/zephh/chronobind/internal/manifest"
	"github.com/zephh/chronobind/internal/ports"
)

// Codec implements ports.Codec using archive/zip.
type Codec struct{}

// New creates a new zip Codec.
func New() *Codec {
	return &Codec{}
}

// Pack snapshots the selection's files under root into a new zip at
// destPath. The manifest is written as the first entry. On any failure the
// partial archive file is removed; a truncated archive is never left behind.
func (c *Codec) Pack(root string, selection []string, m manifest.Backup, destPath string, progress ports.ProgressFunc) (int, error) {
	files, err := resolveSelection(root, selection)
	if err != nil {
		return 0, err
	}

	m.Selection = append([]string(nil), selection...)
	m.FileCount = len(files)

	count, err := writeArchive(root, files, m, destPath, progress)
	if err != nil {
		// Do not leave a truncated archive behind.
		_ = os.Remove(destPath)
		return 0, err
	}
	return count, nil
}

func writeArchive(root string, files []string, m manifest.Backup, destPath string, progress ports.ProgressFunc) (int, error) {
	zipFile, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("%w: creating archive: %v", errdefs.ErrIO, err)
	}

	w := zip.NewWriter(zipFile)

	mw, err := w.Create(manifest.BackupEntryName)
	if err != nil {
		_ = w.Close()
		_ = zipFile.Close()
		return 0, fmt.Errorf("%w: starting manifest entry: %v", errdefs.ErrEncoding, err)
	}
	if err := m.Encode(mw); err != nil {
		_ = w.Close()
		_ = zipFile.Close()
		return 0, fmt.Errorf("%w: writing manifest: %v", errdefs.ErrEncoding, err)
	}

	total := len(files)
	for i, rel := range files {
		if err := addFile(w, root, rel); err != nil {
			_ = w.Close()
			_ = zipFile.Close()
			return 0, err
		}
		if progress != nil {
			progress(i+1, total)
		}
	}

	// Close zip writer first to flush the central directory.
	if err := w.Close(); err != nil {
		_ = zipFile.Close()
		return 0, fmt.Errorf("%w: closing zip writer: %v", errdefs.ErrEncoding, err)
	}
	if err := zipFile.Close(); err != nil {
		return 0, fmt.Errorf("%w: closing archive file: %v", errdefs.ErrEncoding, err)
	}

	return total, nil
}

func addFile(w *zip.Writer, root, rel string) error {
	path := filepath.Join(root, rel)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", errdefs.ErrIO, rel, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("%w: header for %s: %v", errdefs.ErrIO, rel, err)
	}
	header.Name = filepath.ToSlash(rel)
	header.Method = zip.Deflate

	writer, err := w.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("%w: entry for %s: %v", errdefs.ErrEncoding, rel, err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", errdefs.ErrIO, rel, err)
	}
	_, copyErr := io.Copy(writer, file)
	_ = file.Close() // Close immediately, don't defer in loop
	if copyErr != nil {
		return fmt.Errorf("%w: copying %s: %v", errdefs.ErrIO, rel, copyErr)
	}
	return nil
}

// resolveSelection expands the selection's relative paths into the ordered
// list of files to archive. Directories are walked recursively; every
// selected path must be readable.
func resolveSelection(root string, selection []string) ([]string, error) {
	var files []string
	for _, rel := range selection {
		path := filepath.Join(root, rel)
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("%w: selected path %s: %v", errdefs.ErrIO, rel, err)
		}

		if !info.IsDir() {
			files = append(files, rel)
			continue
		}

		err = filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
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
			return nil, fmt.Errorf("%w: walking %s: %v", errdefs.ErrIO, rel, err)
		}
	}
	return files, nil
}

// stagedSuffix marks a destination file moved aside while its replacement is
// extracted. Staged files are restored on rollback and removed on success.
const stagedSuffix = ".unpack-prev"

// Unpack extracts the archive's files onto destRoot, overwriting in place.
// Files that already exist at the destination are staged aside before being
// replaced; if extraction fails partway, the files written by this call are
// removed and the staged originals are moved back, so the step either fully
// commits or has no effect.
func (c *Codec) Unpack(archivePath, destRoot string, progress ports.ProgressFunc) (manifest.Backup, int, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return manifest.Backup{}, 0, fmt.Errorf("%w: opening %s: %v", errdefs.ErrCorruptArchive, filepath.Base(archivePath), err)
	}
	defer func() { _ = r.Close() }()

	m, err := readManifest(&r.Reader)
	if err != nil {
		return manifest.Backup{}, 0, err
	}

	absDest, err := filepath.Abs(destRoot)
	if err != nil {
		return manifest.Backup{}, 0, fmt.Errorf("%w: resolving destination: %v", errdefs.ErrIO, err)
	}
	absDest = filepath.Clean(absDest)

	total := 0
	for _, f := range r.File {
		if !f.FileInfo().IsDir() && f.Name != manifest.BackupEntryName {
			total++
		}
	}

	type staged struct {
		orig    string
		sidecar string
	}

	var written []string
	var displaced []staged
	rollback := func() {
		for i := len(written) - 1; i >= 0; i-- {
			_ = os.Remove(written[i])
		}
		for i := len(displaced) - 1; i >= 0; i-- {
			_ = os.Rename(displaced[i].sidecar, displaced[i].orig)
		}
	}

	done := 0
	for _, f := range r.File {
		if f.Name == manifest.BackupEntryName {
			continue
		}
		// Symlink entries are rejected; a backup never contains them and a
		// crafted one could escape the destination tree.
		if f.Mode()&os.ModeSymlink != 0 {
			rollback()
			return manifest.Backup{}, 0, fmt.Errorf("%w: symlink entry %s", errdefs.ErrCorruptArchive, f.Name)
		}

		outPath := filepath.Join(destRoot, filepath.FromSlash(f.Name))
		if !isWithinDir(absDest, outPath) {
			rollback()
			return manifest.Backup{}, 0, fmt.Errorf("%w: entry escapes destination: %s", errdefs.ErrCorruptArchive, f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(outPath, 0755); err != nil {
				rollback()
				return manifest.Backup{}, 0, fmt.Errorf("%w: creating %s: %v", errdefs.ErrIO, f.Name, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			rollback()
			return manifest.Backup{}, 0, fmt.Errorf("%w: creating parent for %s: %v", errdefs.ErrIO, f.Name, err)
		}

		// A pre-existing destination file is moved aside, not truncated, so a
		// later failure can put it back.
		if info, err := os.Lstat(outPath); err == nil {
			if info.IsDir() {
				rollback()
				return manifest.Backup{}, 0, fmt.Errorf("%w: entry %s collides with a directory", errdefs.ErrIO, f.Name)
			}
			sidecar := outPath + stagedSuffix
			if err := os.Rename(outPath, sidecar); err != nil {
				rollback()
				return manifest.Backup{}, 0, fmt.Errorf("%w: staging %s: %v", errdefs.ErrIO, f.Name, err)
			}
			displaced = append(displaced, staged{orig: outPath, sidecar: sidecar})
		}

		if err := extractFile(f, outPath); err != nil {
			rollback()
			return manifest.Backup{}, 0, err
		}
		written = append(written, outPath)
		done++
		if progress != nil {
			progress(done, total)
		}
	}

	for _, d := range displaced {
		_ = os.Remove(d.sidecar)
	}

	return m, done, nil
}

func extractFile(f *zip.File, destPath string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: reading entry %s: %v", errdefs.ErrCorruptArchive, f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", errdefs.ErrIO, f.Name, err)
	}

	_, copyErr := io.Copy(out, rc)
	closeErr := out.Close()
	if copyErr != nil {
		return fmt.Errorf("%w: extracting %s: %v", errdefs.ErrIO, f.Name, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: closing %s: %v", errdefs.ErrIO, f.Name, closeErr)
	}
	return nil
}

// ReadManifest returns the embedded manifest without extracting any files.
func (c *Codec) ReadManifest(archivePath string) (manifest.Backup, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return manifest.Backup{}, fmt.Errorf("%w: opening %s: %v", errdefs.ErrCorruptArchive, filepath.Base(archivePath), err)
	}
	defer func() { _ = r.Close() }()

	return readManifest(&r.Reader)
}

func readManifest(r *zip.Reader) (manifest.Backup, error) {
	for _, f := range r.File {
		if f.Name != manifest.BackupEntryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return manifest.Backup{}, fmt.Errorf("%w: opening manifest entry: %v", errdefs.ErrCorruptArchive, err)
		}
		defer func() { _ = rc.Close() }()

		m, err := manifest.DecodeBackup(rc)
		if err != nil {
			return manifest.Backup{}, fmt.Errorf("%w: %v", errdefs.ErrCorruptArchive, err)
		}
		return m, nil
	}
	return manifest.Backup{}, fmt.Errorf("%w: no manifest entry", errdefs.ErrCorruptArchive)
}

// isWithinDir checks if the target path is within the base directory.
func isWithinDir(absBaseDir, targetPath string) bool {
	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return false
	}
	absTarget = filepath.Clean(absTarget)

	return strings.HasPrefix(absTarget, absBaseDir+string(filepath.Separator)) ||
		absTarget == absBaseDir
}

// Compile-time check that Codec implements ports.Codec.
var _ ports.Codec = (*Codec)(nil)
