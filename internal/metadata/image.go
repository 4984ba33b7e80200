package metadata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	exif "github.com/dsoprea/go-exif/v3"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
	pngstructure "github.com/dsoprea/go-png-image-structure/v2"

	"github.com/metascrub/backend/internal/models"
)

// exifGroups maps IFD paths to the group prefixes used in record keys.
var exifGroups = map[string]string{
	"IFD":          "Image",
	"IFD0":         "Image",
	"IFD1":         "Thumbnail",
	"IFD/Exif":     "EXIF",
	"IFD/GPSInfo":  "GPS",
	"IFD/Exif/Iop": "Interoperability",
}

// ImageHandler reads EXIF from JPEG and PNG files and strips it by re-encoding.
type ImageHandler struct {
	quality    int
	autoOrient bool
}

// NewImageHandler creates an image handler. quality applies to JPEG output.
func NewImageHandler(quality int, autoOrient bool) *ImageHandler {
	return &ImageHandler{quality: quality, autoOrient: autoOrient}
}

func (h *ImageHandler) Family() models.Family { return models.FamilyImage }

func (h *ImageHandler) Extensions() []string { return []string{".jpg", ".jpeg", ".png"} }

// Extract flattens every EXIF tag into "<Group> <TagName>" keys.
// Files without an EXIF block yield an empty record.
func (h *ImageHandler) Extract(ctx context.Context, path string) (models.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}

	rawExif, err := exifBlock(data)
	if err != nil {
		if errors.Is(err, exif.ErrNoExif) {
			return models.Record{}, nil
		}
		return nil, fmt.Errorf("locating exif block: %w", err)
	}

	tags, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing exif block: %w", err)
	}

	record := make(models.Record, len(tags))
	for _, tag := range tags {
		// IFD pointer tags only link to child directories
		if tag.ChildIfdPath != "" {
			continue
		}
		record[exifKey(tag.IfdPath, tag.TagName, tag.TagId)] = strings.TrimSpace(tag.Formatted)
	}

	return record, nil
}

// Strip decodes the image, copies its pixels into a fresh image and encodes
// that in the original format. Encoders write no ancillary metadata.
func (h *ImageHandler) Strip(ctx context.Context, path string) ([]byte, error) {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return nil, err
	}

	src, err := imaging.Open(path, imaging.AutoOrientation(h.autoOrient))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	clean := imaging.Clone(src)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, clean, format, imaging.JPEGQuality(h.quality)); err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}

	return buf.Bytes(), nil
}

// exifContext is satisfied by the JPEG segment list and the PNG chunk slice.
type exifContext interface {
	Exif() (rootIfd *exif.Ifd, data []byte, err error)
}

// exifBlock returns the TIFF-structured EXIF payload of a JPEG APP1 segment
// or a PNG eXIf chunk. Bytes elsewhere in the file are never interpreted.
func exifBlock(data []byte) ([]byte, error) {
	var (
		mc  exifContext
		err error
	)

	pngParser := pngstructure.NewPngMediaParser()
	jpegParser := jpegstructure.NewJpegMediaParser()

	switch {
	case pngParser.LooksLikeFormat(data):
		mc, err = pngParser.ParseBytes(data)
	case jpegParser.LooksLikeFormat(data):
		mc, err = jpegParser.ParseBytes(data)
	default:
		return nil, errors.New("not a jpeg or png image")
	}
	if err != nil {
		return nil, fmt.Errorf("parsing image structure: %w", err)
	}

	_, rawExif, err := mc.Exif()
	if err != nil {
		return nil, err
	}
	return rawExif, nil
}

func exifKey(ifdPath, tagName string, tagID uint16) string {
	group, ok := exifGroups[ifdPath]
	if !ok {
		group = strings.ReplaceAll(ifdPath, "/", " ")
	}
	if tagName == "" {
		tagName = fmt.Sprintf("Tag 0x%04x", tagID)
	}
	return group + " " + tagName
}
