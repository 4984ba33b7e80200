// mock_storage.go - Mock storage implementation for testing
package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/metascrub/backend/internal/models"
	"github.com/metascrub/backend/internal/storage"
)

// MockStorage implements storage.Store for testing. Files are written to a
// directory so handlers can open them by path, and every save is recorded.
type MockStorage struct {
	dir     string
	uploads map[string][]byte
	cleaned map[string][]byte
	sweeps  int
	mu      sync.RWMutex

	// Injected failures
	UploadErr  error
	CleanedErr error
}

// NewMockStorage creates a mock storage rooted at dir.
func NewMockStorage(dir string) *MockStorage {
	return &MockStorage{
		dir:     dir,
		uploads: make(map[string][]byte),
		cleaned: make(map[string][]byte),
	}
}

func (m *MockStorage) SaveUpload(name string, r io.Reader) (*models.FileInfo, error) {
	if m.UploadErr != nil {
		return nil, m.UploadErr
	}

	safe, err := storage.SafeName(name)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	p := filepath.Join(m.dir, safe)
	if err := os.WriteFile(p, data, 0644); err != nil {
		return nil, fmt.Errorf("writing file: %w", err)
	}

	m.mu.Lock()
	m.uploads[safe] = data
	m.mu.Unlock()

	return &models.FileInfo{
		ID:         generateTestID(),
		Name:       safe,
		Path:       p,
		Size:       int64(len(data)),
		UploadedAt: time.Now(),
		Status:     "uploaded",
	}, nil
}

func (m *MockStorage) SaveCleaned(name string, data []byte) (*models.FileInfo, error) {
	if m.CleanedErr != nil {
		return nil, m.CleanedErr
	}

	safe, err := storage.SafeName(name)
	if err != nil {
		return nil, err
	}
	safe = storage.CleanedPrefix + safe

	m.mu.Lock()
	m.cleaned[safe] = bytes.Clone(data)
	m.mu.Unlock()

	return &models.FileInfo{
		ID:         generateTestID(),
		Name:       safe,
		Size:       int64(len(data)),
		UploadedAt: time.Now(),
		Status:     "cleaned",
	}, nil
}

func (m *MockStorage) TempDir() string {
	return m.dir
}

func (m *MockStorage) Sweep(maxAge time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if maxAge < 0 {
		return 0, errors.New("negative max age")
	}
	m.sweeps++
	return 0, nil
}

// Upload returns the bytes saved under the given upload name.
func (m *MockStorage) Upload(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.uploads[name]
	return data, ok
}

// Cleaned returns the bytes saved under the given cleaned name (with prefix).
func (m *MockStorage) Cleaned(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.cleaned[name]
	return data, ok
}

// UploadCount returns the number of distinct uploaded names.
func (m *MockStorage) UploadCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.uploads)
}

// Sweeps returns how many times Sweep was called.
func (m *MockStorage) Sweeps() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sweeps
}

var idCounter int
var idMu sync.Mutex

func generateTestID() string {
	idMu.Lock()
	defer idMu.Unlock()
	idCounter++
	return fmt.Sprintf("test-id-%d", idCounter)
}

// Ensure MockStorage implements storage.Store
var _ storage.Store = (*MockStorage)(nil)
