package metadata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/dhowden/tag"
	"github.com/go-audio/riff"
	"github.com/go-audio/wav"
	"github.com/go-flac/go-flac"
	"github.com/google/uuid"

	"github.com/metascrub/backend/internal/models"
)

const id3v1Size = 128

// RIFF chunk ids taggers use for an embedded ID3v2 tag
var (
	wavID3Lower = [4]byte{'i', 'd', '3', ' '}
	wavID3Upper = [4]byte{'I', 'D', '3', ' '}
)

// AudioHandler reads and deletes tags in MP3, FLAC, WAV and Ogg files.
type AudioHandler struct {
	tempDir string
}

// NewAudioHandler creates an audio handler. Files that must be rewritten in
// place are copied into tempDir first; an empty tempDir means os.TempDir.
func NewAudioHandler(tempDir string) *AudioHandler {
	return &AudioHandler{tempDir: tempDir}
}

func (h *AudioHandler) Family() models.Family { return models.FamilyAudio }

func (h *AudioHandler) Extensions() []string {
	return []string{".mp3", ".flac", ".wav", ".ogg"}
}

// Extract returns the container's tags with every value stringified.
func (h *AudioHandler) Extract(ctx context.Context, path string) (models.Record, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return extractWAV(path)
	}
	return extractTags(path)
}

// Strip removes all tags and returns the re-saved file.
func (h *AudioHandler) Strip(ctx context.Context, path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return h.stripMP3(path)
	case ".flac":
		return stripFLAC(path)
	case ".ogg":
		return stripOgg(path)
	case ".wav":
		return h.stripWAV(path)
	default:
		return nil, ErrUnsupported
	}
}

func extractTags(path string) (models.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening audio file: %w", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		if errors.Is(err, tag.ErrNoTagsFound) {
			return models.Record{}, nil
		}
		return nil, fmt.Errorf("reading tags: %w", err)
	}

	record := models.Record{}
	for key, value := range m.Raw() {
		if value == nil {
			continue
		}
		record[key] = tagString(value)
	}
	return record, nil
}

func tagString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(t))
	default:
		return fmt.Sprint(t)
	}
}

func extractWAV(path string) (models.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening wav file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadMetadata()
	if err := dec.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading wav metadata: %w", err)
	}

	record := models.Record{}
	if md := dec.Metadata; md != nil {
		addWAVInfo(record, md)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding wav file: %w", err)
	}
	id3, err := readWAVID3(f)
	if err != nil {
		return nil, err
	}
	for key, value := range id3 {
		record[key] = value
	}
	return record, nil
}

func addWAVInfo(record models.Record, md *wav.Metadata) {

	fields := map[string]string{
		"artist":        md.Artist,
		"title":         md.Title,
		"comments":      md.Comments,
		"copyright":     md.Copyright,
		"creation_date": md.CreationDate,
		"engineer":      md.Engineer,
		"technician":    md.Technician,
		"genre":         md.Genre,
		"keywords":      md.Keywords,
		"medium":        md.Medium,
		"product":       md.Product,
		"subject":       md.Subject,
		"software":      md.Software,
		"source":        md.Source,
		"location":      md.Location,
		"track":         md.TrackNbr,
	}
	for key, value := range fields {
		if v := strings.TrimRight(value, "\x00 "); v != "" {
			record[key] = v
		}
	}
}

// readWAVID3 returns the frames of an ID3v2 tag stored in an "id3 " chunk,
// or an empty record when the file has none.
func readWAVID3(r io.Reader) (models.Record, error) {
	record := models.Record{}

	p := riff.New(r)
	if err := p.ParseHeaders(); err != nil {
		return nil, fmt.Errorf("reading riff header: %w", err)
	}

	for {
		ch, err := p.NextChunk()
		if err != nil {
			// io.EOF, or a truncated header after the last complete chunk
			return record, nil
		}

		if ch.ID != wavID3Lower && ch.ID != wavID3Upper {
			ch.Drain()
			continue
		}

		payload := make([]byte, ch.Size)
		n, err := io.ReadFull(ch, payload)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("reading id3 chunk: %w", err)
		}

		m, err := tag.ReadID3v2Tags(bytes.NewReader(payload[:n]))
		if err != nil {
			return nil, fmt.Errorf("reading id3 chunk: %w", err)
		}
		for key, value := range m.Raw() {
			if value == nil {
				continue
			}
			record[key] = tagString(value)
		}
	}
}

// stripMP3 deletes every ID3v2 frame, then drops a trailing ID3v1 block.
func (h *AudioHandler) stripMP3(path string) ([]byte, error) {
	scratch, cleanup, err := h.scratchCopy(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	t, err := id3v2.Open(scratch, id3v2.Options{Parse: true})
	if err != nil {
		return nil, fmt.Errorf("opening id3v2 tag: %w", err)
	}

	t.DeleteAllFrames()
	if err := t.Save(); err != nil {
		t.Close()
		return nil, fmt.Errorf("saving mp3: %w", err)
	}
	if err := t.Close(); err != nil {
		return nil, fmt.Errorf("closing mp3: %w", err)
	}

	data, err := os.ReadFile(scratch)
	if err != nil {
		return nil, fmt.Errorf("reading stripped mp3: %w", err)
	}
	return trimID3v1(data), nil
}

func trimID3v1(data []byte) []byte {
	if len(data) < id3v1Size {
		return data
	}
	if bytes.Equal(data[len(data)-id3v1Size:len(data)-id3v1Size+3], []byte("TAG")) {
		return data[:len(data)-id3v1Size]
	}
	return data
}

// stripFLAC keeps only the blocks needed for playback and seeking.
func stripFLAC(path string) ([]byte, error) {
	f, err := flac.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parsing flac: %w", err)
	}

	kept := make([]*flac.MetaDataBlock, 0, len(f.Meta))
	for _, block := range f.Meta {
		switch block.Type {
		case flac.VorbisComment, flac.Picture, flac.Application, flac.Padding:
			continue
		}
		kept = append(kept, block)
	}
	f.Meta = kept

	return f.Marshal(), nil
}

// stripWAV decodes the PCM samples and encodes them into a fresh RIFF file,
// which carries no LIST or id3 chunks.
func (h *AudioHandler) stripWAV(path string) ([]byte, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening wav file: %w", err)
	}
	defer in.Close()

	dec := wav.NewDecoder(in)
	if !dec.IsValidFile() {
		return nil, errors.New("not a valid wav file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding pcm: %w", err)
	}

	out, err := os.CreateTemp(h.scratchDir(), "strip-*.wav")
	if err != nil {
		return nil, fmt.Errorf("creating scratch file: %w", err)
	}
	defer os.Remove(out.Name())
	defer out.Close()

	enc := wav.NewEncoder(out, int(dec.SampleRate), int(dec.BitDepth), int(dec.NumChans), int(dec.WavAudioFormat))
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encoding pcm: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalizing wav: %w", err)
	}

	if _, err := out.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(out)
}

func (h *AudioHandler) scratchDir() string {
	if h.tempDir != "" {
		return h.tempDir
	}
	return os.TempDir()
}

// scratchCopy copies path into the scratch dir so libraries that save in
// place never touch the original upload.
func (h *AudioHandler) scratchCopy(path string) (string, func(), error) {
	name := filepath.Join(h.scratchDir(), "strip-"+uuid.NewString()+filepath.Ext(path))

	src, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("opening audio file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(name)
	if err != nil {
		return "", nil, fmt.Errorf("creating scratch file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(name)
		return "", nil, fmt.Errorf("copying to scratch file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(name)
		return "", nil, err
	}

	return name, func() { os.Remove(name) }, nil
}
