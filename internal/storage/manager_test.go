// manager_test.go - Tests for storage layer
package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func createTestStore(t *testing.T) *LocalStore {
	root := t.TempDir()
	store, err := NewLocalStore(
		filepath.Join(root, "uploads"),
		filepath.Join(root, "cleaned"),
		filepath.Join(root, "tmp"),
	)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates all directories", func(t *testing.T) {
		store := createTestStore(t)

		for _, dir := range []string{store.uploadDir, store.cleanedDir, store.tempDir} {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				t.Errorf("Expected directory %s to be created", dir)
			}
		}
	})

	t.Run("fails when a directory cannot be created", func(t *testing.T) {
		root := t.TempDir()
		blocker := filepath.Join(root, "file")
		if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}

		_, err := NewLocalStore(filepath.Join(blocker, "uploads"), root, root)
		if err == nil {
			t.Error("Expected error when upload dir is below a regular file")
		}
	})
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain name", "photo.jpg", "photo.jpg", false},
		{"unix traversal", "../../etc/passwd", "passwd", false},
		{"windows path", `C:\Users\me\report.docx`, "report.docx", false},
		{"absolute path", "/var/tmp/song.mp3", "song.mp3", false},
		{"empty", "", "", true},
		{"dot", ".", "", true},
		{"only slashes", "///", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SafeName(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidName) {
					t.Errorf("Expected ErrInvalidName, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestLocalStore_SaveUpload(t *testing.T) {
	t.Run("saves file from reader", func(t *testing.T) {
		store := createTestStore(t)
		content := "Hello, World!"

		info, err := store.SaveUpload("test.txt", strings.NewReader(content))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		if info.ID == "" {
			t.Error("Expected ID to be set")
		}
		if info.Name != "test.txt" {
			t.Errorf("Expected name 'test.txt', got %v", info.Name)
		}
		if info.Size != int64(len(content)) {
			t.Errorf("Expected size %d, got %d", len(content), info.Size)
		}
		if info.Status != "uploaded" {
			t.Errorf("Expected status 'uploaded', got %v", info.Status)
		}
		if info.Path != filepath.Join(store.uploadDir, "test.txt") {
			t.Errorf("Unexpected path %s", info.Path)
		}

		data, err := os.ReadFile(info.Path)
		if err != nil {
			t.Fatalf("Failed to read saved file: %v", err)
		}
		if string(data) != content {
			t.Errorf("Expected content '%s', got '%s'", content, string(data))
		}
	})

	t.Run("saves empty file", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.SaveUpload("empty.txt", strings.NewReader(""))
		if err != nil {
			t.Fatalf("Failed to save empty file: %v", err)
		}
		if info.Size != 0 {
			t.Errorf("Expected size 0, got %d", info.Size)
		}
	})

	t.Run("overwrites same name", func(t *testing.T) {
		store := createTestStore(t)

		if _, err := store.SaveUpload("same.txt", strings.NewReader("first version")); err != nil {
			t.Fatal(err)
		}
		info, err := store.SaveUpload("same.txt", strings.NewReader("second"))
		if err != nil {
			t.Fatal(err)
		}

		data, _ := os.ReadFile(info.Path)
		if string(data) != "second" {
			t.Errorf("Expected second upload to win, got %q", data)
		}
	})

	t.Run("keeps traversal names inside upload dir", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.SaveUpload("../../escape.txt", strings.NewReader("x"))
		if err != nil {
			t.Fatal(err)
		}
		if filepath.Dir(info.Path) != store.uploadDir {
			t.Errorf("Expected file under %s, got %s", store.uploadDir, info.Path)
		}
	})

	t.Run("rejects empty name", func(t *testing.T) {
		store := createTestStore(t)

		if _, err := store.SaveUpload("", strings.NewReader("x")); err == nil {
			t.Error("Expected error for empty name")
		}
	})
}

func TestLocalStore_SaveCleaned(t *testing.T) {
	store := createTestStore(t)
	data := []byte("cleaned bytes")

	info, err := store.SaveCleaned("photo.jpg", data)
	if err != nil {
		t.Fatalf("Failed to save cleaned file: %v", err)
	}

	if info.Name != "cleaned_photo.jpg" {
		t.Errorf("Expected name 'cleaned_photo.jpg', got %v", info.Name)
	}
	if info.Status != "cleaned" {
		t.Errorf("Expected status 'cleaned', got %v", info.Status)
	}

	saved, err := os.ReadFile(filepath.Join(store.cleanedDir, "cleaned_photo.jpg"))
	if err != nil {
		t.Fatalf("Failed to read cleaned file: %v", err)
	}
	if !bytes.Equal(saved, data) {
		t.Error("Saved data doesn't match original")
	}
}

func TestLocalStore_TempDir(t *testing.T) {
	store := createTestStore(t)
	if store.TempDir() != store.tempDir {
		t.Errorf("Expected %s, got %s", store.tempDir, store.TempDir())
	}
}

func TestLocalStore_Sweep(t *testing.T) {
	t.Run("removes only old files", func(t *testing.T) {
		store := createTestStore(t)

		old, err := store.SaveUpload("old.txt", strings.NewReader("old"))
		if err != nil {
			t.Fatal(err)
		}
		cleanedOld, err := store.SaveCleaned("old.txt", []byte("old"))
		if err != nil {
			t.Fatal(err)
		}
		fresh, err := store.SaveUpload("fresh.txt", strings.NewReader("fresh"))
		if err != nil {
			t.Fatal(err)
		}

		past := time.Now().Add(-2 * time.Hour)
		for _, p := range []string{old.Path, cleanedOld.Path} {
			if err := os.Chtimes(p, past, past); err != nil {
				t.Fatal(err)
			}
		}

		removed, err := store.Sweep(time.Hour)
		if err != nil {
			t.Fatalf("Sweep failed: %v", err)
		}
		if removed != 2 {
			t.Errorf("Expected 2 files removed, got %d", removed)
		}

		if _, err := os.Stat(old.Path); !os.IsNotExist(err) {
			t.Error("Old upload should be deleted")
		}
		if _, err := os.Stat(fresh.Path); err != nil {
			t.Error("Fresh upload should survive")
		}
	})

	t.Run("skips subdirectories", func(t *testing.T) {
		store := createTestStore(t)
		sub := filepath.Join(store.tempDir, "nested")
		if err := os.Mkdir(sub, 0755); err != nil {
			t.Fatal(err)
		}
		past := time.Now().Add(-2 * time.Hour)
		os.Chtimes(sub, past, past)

		removed, err := store.Sweep(time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if removed != 0 {
			t.Errorf("Expected nothing removed, got %d", removed)
		}
	})
}
