// fixtures.go - Builders for small media files used across package tests
package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/bogem/id3v2/v2"
	"github.com/disintegration/imaging"
	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"
	"github.com/jung-kurt/gofpdf"
	"github.com/klauspost/compress/zip"
)

// EXIF tag IDs written by the image builders.
const (
	TagMake  = 0x010f
	TagModel = 0x0110
)

// WriteFile writes data into dir and returns the full path.
func WriteFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0644); err != nil {
		t.Fatalf("Failed to write fixture %s: %v", name, err)
	}
	return p
}

// TIFF encodes a big-endian EXIF block with a single IFD0 holding the given
// ASCII tags.
func TIFF(t *testing.T, tags map[uint16]string) []byte {
	t.Helper()

	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		t.Fatalf("Failed to load ifd mapping: %v", err)
	}

	ib := exif.NewIfdBuilder(im, exif.NewTagIndex(), exifcommon.IfdStandardIfdIdentity, binary.BigEndian)

	ids := make([]int, 0, len(tags))
	for id := range tags {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for _, id := range ids {
		if err := ib.AddStandard(uint16(id), tags[uint16(id)]); err != nil {
			t.Fatalf("Failed to add exif tag 0x%04x: %v", id, err)
		}
	}

	data, err := exif.NewIfdByteEncoder().EncodeToExif(ib)
	if err != nil {
		t.Fatalf("Failed to encode exif: %v", err)
	}
	return data
}

func encodeImage(t *testing.T, format imaging.Format) []byte {
	t.Helper()
	img := imaging.New(16, 16, color.NRGBA{R: 200, G: 80, B: 40, A: 255})

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format); err != nil {
		t.Fatalf("Failed to encode image: %v", err)
	}
	return buf.Bytes()
}

// JPEG returns a small JPEG. When tags is non-empty an APP1 EXIF segment is
// inserted right after the SOI marker.
func JPEG(t *testing.T, tags map[uint16]string) []byte {
	t.Helper()
	plain := encodeImage(t, imaging.JPEG)
	if len(tags) == 0 {
		return plain
	}

	payload := append([]byte("Exif\x00\x00"), TIFF(t, tags)...)

	var out bytes.Buffer
	out.Write(plain[:2])
	out.Write([]byte{0xFF, 0xE1})
	binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(plain[2:])
	return out.Bytes()
}

// PNG returns a small PNG. When tags is non-empty an eXIf chunk is inserted
// before IEND.
func PNG(t *testing.T, tags map[uint16]string) []byte {
	t.Helper()
	plain := encodeImage(t, imaging.PNG)
	if len(tags) == 0 {
		return plain
	}

	const iendSize = 12
	body := TIFF(t, tags)

	var chunk bytes.Buffer
	binary.Write(&chunk, binary.BigEndian, uint32(len(body)))
	chunk.WriteString("eXIf")
	chunk.Write(body)
	binary.Write(&chunk, binary.BigEndian, crc32.ChecksumIEEE(chunk.Bytes()[4:]))

	var out bytes.Buffer
	out.Write(plain[:len(plain)-iendSize])
	out.Write(chunk.Bytes())
	out.Write(plain[len(plain)-iendSize:])
	return out.Bytes()
}

// PDF returns a one-page document with the given title and author in its
// information dictionary.
func PDF(t *testing.T, title, author string) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, false)
	pdf.SetAuthor(author, false)
	pdf.AddPage()
	pdf.SetFont("Arial", "", 12)
	pdf.Cell(40, 10, "metadata fixture")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("Failed to render pdf: %v", err)
	}
	return buf.Bytes()
}

// BarePDF returns a minimal valid PDF whose trailer has no /Info entry.
func BarePDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 200] /Resources << >> >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f\r\n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n\r\n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

// CoreProps holds the DOCX core properties written by DOCX.
type CoreProps struct {
	Title   string
	Creator string
}

// DOCX returns a minimal word package. A nil props omits docProps/core.xml.
func DOCX(t *testing.T, props *CoreProps) []byte {
	t.Helper()

	parts := []struct {
		name string
		body string
	}{
		{"[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/><Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/></Types>`},
		{"_rels/.rels", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`},
		{"word/document.xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>fixture</w:t></w:r></w:p></w:body></w:document>`},
	}

	if props != nil {
		parts = append(parts, struct {
			name string
			body string
		}{"docProps/core.xml", fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"><dc:title>%s</dc:title><dc:creator>%s</dc:creator><dcterms:created xsi:type="dcterms:W3CDTF">2024-01-02T03:04:05Z</dcterms:created></cp:coreProperties>`, props.Title, props.Creator)})
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, p := range parts {
		f, err := w.Create(p.name)
		if err != nil {
			t.Fatalf("Failed to create %s: %v", p.name, err)
		}
		if _, err := f.Write([]byte(p.body)); err != nil {
			t.Fatalf("Failed to write %s: %v", p.name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close docx: %v", err)
	}
	return buf.Bytes()
}

// mpegFrames returns n silent MPEG-1 Layer III frames (128 kbit/s, 44.1 kHz).
func mpegFrames(n int) []byte {
	const frameSize = 417
	frame := make([]byte, frameSize)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0x64})
	return bytes.Repeat(frame, n)
}

// ID3v1 returns a 128-byte ID3v1 block.
func ID3v1(title, artist string) []byte {
	b := make([]byte, 128)
	copy(b, "TAG")
	copy(b[3:33], title)
	copy(b[33:63], artist)
	b[127] = 0xFF
	return b
}

// MP3 returns fake MPEG audio frames, optionally preceded by an ID3v2 tag with
// the given title and artist and followed by an ID3v1 block.
func MP3(t *testing.T, title, artist string, withV1 bool) []byte {
	t.Helper()

	var buf bytes.Buffer
	if title != "" || artist != "" {
		tag := id3v2.NewEmptyTag()
		tag.SetTitle(title)
		tag.SetArtist(artist)
		if _, err := tag.WriteTo(&buf); err != nil {
			t.Fatalf("Failed to write id3v2 tag: %v", err)
		}
	}

	buf.Write(mpegFrames(4))
	if withV1 {
		buf.Write(ID3v1(title, artist))
	}
	return buf.Bytes()
}

func streamInfo() []byte {
	const (
		sampleRate = 44100
		channels   = 2
		bits       = 16
		samples    = 4096
	)

	b := make([]byte, 34)
	binary.BigEndian.PutUint16(b[0:], 4096)
	binary.BigEndian.PutUint16(b[2:], 4096)
	packed := uint64(sampleRate)<<44 | uint64(channels-1)<<41 | uint64(bits-1)<<36 | uint64(samples)
	binary.BigEndian.PutUint64(b[10:], packed)
	return b
}

// FLAC returns a FLAC stream with a STREAMINFO block and, when comments is
// non-empty, a Vorbis comment block. Comment keys are field names such as TITLE.
func FLAC(t *testing.T, comments map[string]string) []byte {
	t.Helper()

	f := &flac.File{
		Meta: []*flac.MetaDataBlock{
			{Type: flac.StreamInfo, Data: streamInfo()},
		},
		Frames: []byte{0xFF, 0xF8, 0x69, 0x08, 0x00, 0x00},
	}

	if len(comments) > 0 {
		cmts := flacvorbis.New()
		keys := make([]string, 0, len(comments))
		for k := range comments {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := cmts.Add(k, comments[k]); err != nil {
				t.Fatalf("Failed to add vorbis comment %s: %v", k, err)
			}
		}
		block := cmts.Marshal()
		f.Meta = append(f.Meta, &block)
	}

	return f.Marshal()
}

// WAV returns a short 16-bit mono PCM file. A non-nil md is written as a
// LIST/INFO chunk.
func WAV(t *testing.T, md *wav.Metadata) []byte {
	t.Helper()

	out, err := os.CreateTemp(t.TempDir(), "fixture-*.wav")
	if err != nil {
		t.Fatalf("Failed to create wav: %v", err)
	}
	defer out.Close()

	enc := wav.NewEncoder(out, 8000, 16, 1, 1)
	enc.Metadata = md

	samples := make([]int, 800)
	for i := range samples {
		samples[i] = (i % 40) * 500
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 8000},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("Failed to write pcm: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Failed to close wav: %v", err)
	}

	data, err := os.ReadFile(out.Name())
	if err != nil {
		t.Fatalf("Failed to read wav: %v", err)
	}
	return data
}

// WAVWithID3 returns WAV(t, md) with an "id3 " chunk holding an ID3v2 tag
// appended after the audio data.
func WAVWithID3(t *testing.T, md *wav.Metadata, title, artist string) []byte {
	t.Helper()

	var tagBuf bytes.Buffer
	tag := id3v2.NewEmptyTag()
	tag.SetTitle(title)
	tag.SetArtist(artist)
	if _, err := tag.WriteTo(&tagBuf); err != nil {
		t.Fatalf("Failed to write id3v2 tag: %v", err)
	}

	data := WAV(t, md)
	var buf bytes.Buffer
	buf.Write(data)
	buf.WriteString("id3 ")
	binary.Write(&buf, binary.LittleEndian, uint32(tagBuf.Len()))
	buf.Write(tagBuf.Bytes())
	if tagBuf.Len()%2 == 1 {
		buf.WriteByte(0)
	}

	out := buf.Bytes()
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-8))
	return out
}
