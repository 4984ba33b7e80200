package metadata

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"os"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metascrub/backend/internal/testutil"
)

var cameraTags = map[uint16]string{
	testutil.TagMake:  "Acme",
	testutil.TagModel: "TestCam",
}

func TestImageHandler_Extract(t *testing.T) {
	h := NewImageHandler(95, true)
	dir := t.TempDir()
	ctx := context.Background()

	t.Run("jpeg with exif", func(t *testing.T) {
		p := testutil.WriteFile(t, dir, "camera.jpg", testutil.JPEG(t, cameraTags))

		record, err := h.Extract(ctx, p)
		require.NoError(t, err)
		assert.Contains(t, record["Image Model"], "TestCam")
		assert.Contains(t, record["Image Make"], "Acme")
	})

	t.Run("png with exif", func(t *testing.T) {
		p := testutil.WriteFile(t, dir, "camera.png", testutil.PNG(t, cameraTags))

		record, err := h.Extract(ctx, p)
		require.NoError(t, err)
		assert.Contains(t, record["Image Model"], "TestCam")
	})

	t.Run("jpeg without exif", func(t *testing.T) {
		p := testutil.WriteFile(t, dir, "plain.jpg", testutil.JPEG(t, nil))

		record, err := h.Extract(ctx, p)
		require.NoError(t, err)
		assert.Empty(t, record)
	})

	t.Run("not an image", func(t *testing.T) {
		p := testutil.WriteFile(t, dir, "fake.jpg", []byte("plain text"))

		_, err := h.Extract(ctx, p)
		assert.Error(t, err)
	})
}

// tiffLookalike is a TIFF header pointing at an IFD that is not there.
var tiffLookalike = []byte("MM\x00\x2a\x00\x00\x00\x08\xff\xff\xff\xff")

func TestImageHandler_ExtractIgnoresStrayTIFFSignature(t *testing.T) {
	h := NewImageHandler(95, false)
	dir := t.TempDir()
	ctx := context.Background()

	t.Run("jpeg comment segment", func(t *testing.T) {
		plain := testutil.JPEG(t, nil)

		var buf bytes.Buffer
		buf.Write(plain[:2])
		buf.Write([]byte{0xFF, 0xFE})
		binary.Write(&buf, binary.BigEndian, uint16(len(tiffLookalike)+2))
		buf.Write(tiffLookalike)
		buf.Write(plain[2:])

		p := testutil.WriteFile(t, dir, "comment.jpg", buf.Bytes())
		record, err := h.Extract(ctx, p)
		require.NoError(t, err)
		assert.Empty(t, record)
	})

	t.Run("png text chunk", func(t *testing.T) {
		plain := testutil.PNG(t, nil)
		const iendSize = 12

		body := append([]byte("Comment\x00"), tiffLookalike...)
		var chunk bytes.Buffer
		binary.Write(&chunk, binary.BigEndian, uint32(len(body)))
		chunk.WriteString("tEXt")
		chunk.Write(body)
		binary.Write(&chunk, binary.BigEndian, crc32.ChecksumIEEE(chunk.Bytes()[4:]))

		var buf bytes.Buffer
		buf.Write(plain[:len(plain)-iendSize])
		buf.Write(chunk.Bytes())
		buf.Write(plain[len(plain)-iendSize:])

		p := testutil.WriteFile(t, dir, "text.png", buf.Bytes())
		record, err := h.Extract(ctx, p)
		require.NoError(t, err)
		assert.Empty(t, record)
	})
}

func TestImageHandler_Strip(t *testing.T) {
	h := NewImageHandler(90, true)
	dir := t.TempDir()
	ctx := context.Background()

	for _, name := range []string{"camera.jpg", "camera.jpeg", "camera.png"} {
		t.Run(name, func(t *testing.T) {
			var original []byte
			if name == "camera.png" {
				original = testutil.PNG(t, cameraTags)
			} else {
				original = testutil.JPEG(t, cameraTags)
			}
			p := testutil.WriteFile(t, dir, name, original)

			out, err := h.Strip(ctx, p)
			require.NoError(t, err)

			img, err := imaging.Decode(bytes.NewReader(out))
			require.NoError(t, err)
			assert.Equal(t, 16, img.Bounds().Dx())
			assert.Equal(t, 16, img.Bounds().Dy())

			cleaned := testutil.WriteFile(t, dir, "cleaned_"+name, out)
			record, err := h.Extract(ctx, cleaned)
			require.NoError(t, err)
			assert.Empty(t, record)

			onDisk, err := os.ReadFile(p)
			require.NoError(t, err)
			assert.Equal(t, original, onDisk, "original upload must not change")
		})
	}

	t.Run("png output keeps png signature", func(t *testing.T) {
		p := testutil.WriteFile(t, dir, "sig.png", testutil.PNG(t, cameraTags))
		out, err := h.Strip(ctx, p)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(out, []byte("\x89PNG\r\n\x1a\n")))
	})

	t.Run("undecodable image", func(t *testing.T) {
		p := testutil.WriteFile(t, dir, "broken.png", []byte("not png"))
		_, err := h.Strip(ctx, p)
		assert.Error(t, err)
	})
}

func TestExifKey(t *testing.T) {
	tests := []struct {
		ifd  string
		name string
		id   uint16
		want string
	}{
		{"IFD", "Model", 0x0110, "Image Model"},
		{"IFD1", "Compression", 0x0103, "Thumbnail Compression"},
		{"IFD/Exif", "ExposureTime", 0x829a, "EXIF ExposureTime"},
		{"IFD/GPSInfo", "GPSLatitude", 0x0002, "GPS GPSLatitude"},
		{"IFD/Exif/Iop", "InteroperabilityIndex", 0x0001, "Interoperability InteroperabilityIndex"},
		{"IFD/Exif/Custom", "", 0xabcd, "IFD Exif Custom Tag 0xabcd"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, exifKey(tt.ifd, tt.name, tt.id))
		})
	}
}
