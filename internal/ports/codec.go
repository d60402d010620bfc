package ports

import "github.com/zephh/chronobind/internal/manifest"

// ProgressFunc reports per-file progress from a blocking archive or copy
// operation. Implementations must be safe to call from a worker goroutine.
type ProgressFunc func(done, total int)

// Codec abstracts backup archive encoding and decoding.
// Production code uses the zip codec in internal/archive; tests inject
// MockCodec to exercise failure paths.
type Codec interface {
	// Pack snapshots the selection's files under root into a new archive at
	// destPath, embedding m as the archive's manifest. Returns the number
	// of files archived. A partial archive is never left behind on failure.
	Pack(root string, selection []string, m manifest.Backup, destPath string, progress ProgressFunc) (int, error)

	// Unpack extracts an archive's files onto destRoot, overwriting in
	// place, and returns the embedded manifest and the number of files
	// written. Files already extracted are removed again if extraction
	// fails partway.
	Unpack(archivePath, destRoot string, progress ProgressFunc) (manifest.Backup, int, error)

	// ReadManifest returns the embedded manifest without extracting.
	ReadManifest(archivePath string) (manifest.Backup, error)
}
