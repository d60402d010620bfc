package mocks

import (
	"github.com/zephh/chronobind/internal/archive"
	"github.com/zephh/chronobind/internal/manifest"
	"github.com/zephh/chronobind/internal/ports"
)

// MockCodec wraps the real zip codec and injects failures per method.
type MockCodec struct {
	Base ports.Codec

	PackErr   error
	UnpackErr error

	// PackCalls records destination paths of Pack calls.
	PackCalls []string
}

// NewMockCodec creates a MockCodec delegating to the real codec.
func NewMockCodec() *MockCodec {
	return &MockCodec{Base: archive.New()}
}

func (m *MockCodec) Pack(root string, selection []string, mf manifest.Backup, destPath string, progress ports.ProgressFunc) (int, error) {
	m.PackCalls = append(m.PackCalls, destPath)
	if m.PackErr != nil {
		return 0, m.PackErr
	}
	return m.Base.Pack(root, selection, mf, destPath, progress)
}

func (m *MockCodec) Unpack(archivePath, destRoot string, progress ports.ProgressFunc) (manifest.Backup, int, error) {
	if m.UnpackErr != nil {
		return manifest.Backup{}, 0, m.UnpackErr
	}
	return m.Base.Unpack(archivePath, destRoot, progress)
}

func (m *MockCodec) ReadManifest(archivePath string) (manifest.Backup, error) {
	return m.Base.ReadManifest(archivePath)
}

// Compile-time check that MockCodec implements ports.Codec.
var _ ports.Codec = (*MockCodec)(nil)
