// Package mocks provides mock implementations for testing.
package mocks

import (
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/zephh/chronobind/internal/adapters/osfs"
	"github.com/zephh/chronobind/internal/ports"
)

// FaultyFileSystem wraps a real filesystem and injects failures, used to
// exercise rollback paths (mid-copy failure, extraction failure) against
// real temp directories.
type FaultyFileSystem struct {
	Base ports.FileSystem

	// WriteErrors fails WriteFile for paths containing the key.
	WriteErrors map[string]error
	// ReadErrors fails ReadFile for paths containing the key.
	ReadErrors map[string]error
	// RemoveErrors fails Remove for paths containing the key.
	RemoveErrors map[string]error

	// FailWriteAfter, when > 0, lets that many WriteFile calls succeed and
	// fails every one after.
	FailWriteAfter int
	WriteErr       error

	mu     sync.Mutex
	writes int
}

// NewFaultyFileSystem creates a FaultyFileSystem over the OS filesystem.
func NewFaultyFileSystem() *FaultyFileSystem {
	return &FaultyFileSystem{
		Base:         osfs.New(),
		WriteErrors:  make(map[string]error),
		ReadErrors:   make(map[string]error),
		RemoveErrors: make(map[string]error),
	}
}

func match(errs map[string]error, name string) error {
	for key, err := range errs {
		if strings.Contains(name, key) {
			return err
		}
	}
	return nil
}

func (f *FaultyFileSystem) ReadDir(name string) ([]os.DirEntry, error) { return f.Base.ReadDir(name) }
func (f *FaultyFileSystem) Stat(name string) (os.FileInfo, error)      { return f.Base.Stat(name) }
func (f *FaultyFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return f.Base.MkdirAll(path, perm)
}

func (f *FaultyFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	if err := match(f.WriteErrors, name); err != nil {
		return err
	}
	if f.FailWriteAfter > 0 {
		f.mu.Lock()
		f.writes++
		over := f.writes > f.FailWriteAfter
		f.mu.Unlock()
		if over {
			if f.WriteErr != nil {
				return f.WriteErr
			}
			return os.ErrPermission
		}
	}
	return f.Base.WriteFile(name, data, perm)
}

func (f *FaultyFileSystem) ReadFile(name string) ([]byte, error) {
	if err := match(f.ReadErrors, name); err != nil {
		return nil, err
	}
	return f.Base.ReadFile(name)
}

func (f *FaultyFileSystem) Remove(name string) error {
	if err := match(f.RemoveErrors, name); err != nil {
		return err
	}
	return f.Base.Remove(name)
}

func (f *FaultyFileSystem) RemoveAll(path string) error          { return f.Base.RemoveAll(path) }
func (f *FaultyFileSystem) Rename(oldpath, newpath string) error { return f.Base.Rename(oldpath, newpath) }
func (f *FaultyFileSystem) Open(name string) (fs.File, error)    { return f.Base.Open(name) }
func (f *FaultyFileSystem) Create(name string) (*os.File, error) { return f.Base.Create(name) }
func (f *FaultyFileSystem) Walk(root string, fn ports.WalkFunc) error {
	return f.Base.Walk(root, fn)
}

// Compile-time check that FaultyFileSystem implements ports.FileSystem.
var _ ports.FileSystem = (*FaultyFileSystem)(nil)
