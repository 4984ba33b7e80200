package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/metascrub/backend/internal/models"
)

// CleanedPrefix is prepended to the original filename of every cleaned file.
const CleanedPrefix = "cleaned_"

// ErrInvalidName is returned for filenames that reduce to nothing usable.
var ErrInvalidName = errors.New("invalid file name")

// Store defines the interface for the upload and cleaned-file folders.
type Store interface {
	SaveUpload(name string, r io.Reader) (*models.FileInfo, error)
	SaveCleaned(name string, data []byte) (*models.FileInfo, error)
	TempDir() string
	Sweep(maxAge time.Duration) (int, error)
}

// LocalStore implements Store using fixed directories on the local filesystem.
// Files are stored under their original base name; a second upload with the
// same name overwrites the first.
type LocalStore struct {
	uploadDir  string
	cleanedDir string
	tempDir    string
}

// NewLocalStore creates a new LocalStore, creating its directories if needed.
func NewLocalStore(uploadDir, cleanedDir, tempDir string) (*LocalStore, error) {
	for _, dir := range []string{uploadDir, cleanedDir, tempDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	return &LocalStore{
		uploadDir:  uploadDir,
		cleanedDir: cleanedDir,
		tempDir:    tempDir,
	}, nil
}

// SafeName reduces a client-supplied filename to its base name so it cannot
// escape the storage directories.
func SafeName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	base := path.Base(path.Clean("/" + name))
	if base == "/" || base == "." || base == "" {
		return "", ErrInvalidName
	}
	return base, nil
}

// SaveUpload writes an uploaded file into the uploads directory.
func (s *LocalStore) SaveUpload(name string, r io.Reader) (*models.FileInfo, error) {
	safe, err := SafeName(name)
	if err != nil {
		return nil, err
	}
	p := filepath.Join(s.uploadDir, safe)

	f, err := os.Create(p)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(p)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	return newFileInfo(safe, p, size, "uploaded"), nil
}

// SaveCleaned writes a cleaned file as cleaned_<name> into the cleaned directory.
func (s *LocalStore) SaveCleaned(name string, data []byte) (*models.FileInfo, error) {
	safe, err := SafeName(name)
	if err != nil {
		return nil, err
	}
	safe = CleanedPrefix + safe
	p := filepath.Join(s.cleanedDir, safe)

	if err := os.WriteFile(p, data, 0644); err != nil {
		return nil, fmt.Errorf("writing cleaned file: %w", err)
	}

	return newFileInfo(safe, p, int64(len(data)), "cleaned"), nil
}

// TempDir returns the scratch directory used by format handlers.
func (s *LocalStore) TempDir() string {
	return s.tempDir
}

// Sweep removes files older than maxAge from all storage directories and
// returns how many were deleted.
func (s *LocalStore) Sweep(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, dir := range []string{s.uploadDir, s.cleanedDir, s.tempDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return removed, fmt.Errorf("reading %s: %w", dir, err)
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !os.IsNotExist(err) {
					return removed, fmt.Errorf("deleting file: %w", err)
				}
				removed++
			}
		}
	}

	return removed, nil
}

func newFileInfo(name, p string, size int64, status string) *models.FileInfo {
	return &models.FileInfo{
		ID:         uuid.New().String(),
		Name:       name,
		Path:       p,
		Size:       size,
		UploadedAt: time.Now(),
		Status:     status,
	}
}
