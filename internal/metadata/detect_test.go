package metadata

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/metascrub/backend/internal/testutil"
)

func TestDetectType(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"photo.jpg", testutil.JPEG(t, nil), "image/jpeg (jpg)"},
		{"scan.png", testutil.PNG(t, nil), "image/png (png)"},
		{"doc.pdf", testutil.BarePDF(), "application/pdf (pdf)"},
		{"notes.txt", []byte("just some words"), UnknownType},
		{"empty.bin", []byte{}, UnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testutil.WriteFile(t, dir, tt.name, tt.data)
			assert.Equal(t, tt.want, DetectType(p))
		})
	}

	t.Run("ignores misleading extension", func(t *testing.T) {
		p := testutil.WriteFile(t, dir, "actually-png.jpg", testutil.PNG(t, nil))
		assert.Equal(t, "image/png (png)", DetectType(p))
	})

	t.Run("missing file", func(t *testing.T) {
		assert.Equal(t, UnknownType, DetectType(filepath.Join(dir, "nope.jpg")))
	})

	t.Run("audio containers are recognised", func(t *testing.T) {
		for name, data := range map[string][]byte{
			"a.mp3":  testutil.MP3(t, "T", "A", false),
			"a.flac": testutil.FLAC(t, nil),
			"a.wav":  testutil.WAV(t, nil),
		} {
			p := testutil.WriteFile(t, dir, name, data)
			assert.NotEqual(t, UnknownType, DetectType(p), name)
		}
	})
}
