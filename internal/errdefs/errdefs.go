// Package errdefs defines the error kinds surfaced by the engine. Callers
// classify failures with errors.Is; wrapping preserves the underlying cause.
package errdefs

import "errors"

var (
	// ErrIO marks read, write or permission failures on live files or
	// archives.
	ErrIO = errors.New("io failure")

	// ErrCorruptArchive marks an archive whose container or manifest cannot
	// be parsed.
	ErrCorruptArchive = errors.New("corrupt archive")

	// ErrEncoding marks a failure to finalize an archive (disk full,
	// permission denied while closing).
	ErrEncoding = errors.New("archive encoding failure")

	// ErrNotFound marks a referenced backup or character that does not
	// exist.
	ErrNotFound = errors.New("not found")

	// ErrInUse marks a conflicting concurrent access to the same
	// character's store.
	ErrInUse = errors.New("in use")

	// ErrBackupFailed marks a paste chain aborted because its safety backup
	// step failed; the destination is untouched.
	ErrBackupFailed = errors.New("backup failed")

	// ErrTransferFailed marks a paste whose copy step failed; the
	// destination has been rolled back from the safety backup.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrImportConflict marks a bundle entry whose identity and timestamp
	// already exist in the target store. Conflicts are reported per item;
	// the import continues.
	ErrImportConflict = errors.New("import conflict")
)
