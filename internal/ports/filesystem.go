// Package ports holds the interfaces the engine depends on: the filesystem,
// the archive codec and the outside collaborators. Adapters implement them
// for production; mocks implement them for failure-injection tests.
package ports

import (
	"io/fs"
	"os"
)

// FileSystem is the engine's view of the disk. Every path the store and the
// transfer engine touch goes through this interface, so tests can fail any
// individual operation and assert the rollback behavior.
type FileSystem interface {
	// ReadDir returns the entries of a directory.
	ReadDir(name string) ([]os.DirEntry, error)

	// Stat returns file info for a path.
	Stat(name string) (os.FileInfo, error)

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(path string, perm os.FileMode) error

	// WriteFile writes data to a file, creating it if needed.
	WriteFile(name string, data []byte, perm os.FileMode) error

	// ReadFile returns a file's contents.
	ReadFile(name string) ([]byte, error)

	// Remove deletes a file or empty directory.
	Remove(name string) error

	// RemoveAll deletes a path and everything under it.
	RemoveAll(path string) error

	// Rename moves oldpath to newpath.
	Rename(oldpath, newpath string) error

	// Open opens a file for reading.
	Open(name string) (fs.File, error)

	// Create creates or truncates a file for writing.
	Create(name string) (*os.File, error)

	// Walk visits every file and directory under root.
	Walk(root string, fn WalkFunc) error
}

// WalkFunc is the visitor called by Walk for each path.
type WalkFunc func(path string, info os.FileInfo, err error) error
