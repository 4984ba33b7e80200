package metadata

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/metascrub/backend/internal/models"
)

// OPC part names holding document properties.
const (
	corePropsPart   = "docProps/core.xml"
	customPropsPart = "docProps/custom.xml"
)

const emptyCoreProps = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" xmlns:dcmitype="http://purl.org/dc/dcmitype/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"/>`

const emptyCustomProps = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/custom-properties" xmlns:vt="http://schemas.openxmlformats.org/officeDocument/2006/docPropsVTypes"/>`

// coreProperties matches docProps/core.xml by local element name.
type coreProperties struct {
	Title          string `xml:"title"`
	Subject        string `xml:"subject"`
	Creator        string `xml:"creator"`
	Keywords       string `xml:"keywords"`
	Description    string `xml:"description"`
	LastModifiedBy string `xml:"lastModifiedBy"`
	Revision       string `xml:"revision"`
	Created        string `xml:"created"`
	Modified       string `xml:"modified"`
	Category       string `xml:"category"`
	ContentStatus  string `xml:"contentStatus"`
}

func (p coreProperties) record() models.Record {
	fields := []struct {
		key   string
		value string
	}{
		{"author", p.Creator},
		{"title", p.Title},
		{"subject", p.Subject},
		{"created", p.Created},
		{"modified", p.Modified},
		{"keywords", p.Keywords},
		{"description", p.Description},
		{"last_modified_by", p.LastModifiedBy},
		{"revision", p.Revision},
		{"category", p.Category},
		{"content_status", p.ContentStatus},
	}

	record := models.Record{}
	for _, f := range fields {
		if v := strings.TrimSpace(f.value); v != "" {
			record[f.key] = v
		}
	}
	return record
}

// DocumentHandler reads and clears the core properties of DOCX packages.
type DocumentHandler struct{}

// NewDocumentHandler creates a DOCX handler.
func NewDocumentHandler() *DocumentHandler {
	return &DocumentHandler{}
}

func (h *DocumentHandler) Family() models.Family { return models.FamilyDocument }

func (h *DocumentHandler) Extensions() []string { return []string{".docx"} }

// Extract reports the non-empty core properties. Packages without a core
// properties part yield an empty record.
func (h *DocumentHandler) Extract(ctx context.Context, path string) (models.Record, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening docx package: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != corePropsPart {
			continue
		}

		data, err := readZipEntry(f)
		if err != nil {
			return nil, err
		}

		var props coreProperties
		if err := xml.Unmarshal(data, &props); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", corePropsPart, err)
		}
		return props.record(), nil
	}

	return models.Record{}, nil
}

// Strip copies the package entry by entry, replacing the core and custom
// property parts with empty ones. Entry order is preserved.
func (h *DocumentHandler) Strip(ctx context.Context, path string) ([]byte, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening docx package: %w", err)
	}
	defer r.Close()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	for _, f := range r.File {
		header := &zip.FileHeader{
			Name:     f.Name,
			Method:   f.Method,
			Modified: f.Modified,
		}

		dst, err := w.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", f.Name, err)
		}

		switch {
		case strings.HasSuffix(f.Name, "/"):
			continue
		case f.Name == corePropsPart:
			_, err = io.WriteString(dst, emptyCoreProps)
		case f.Name == customPropsPart:
			_, err = io.WriteString(dst, emptyCustomProps)
		default:
			err = copyZipEntry(dst, f)
		}
		if err != nil {
			return nil, fmt.Errorf("writing %s: %w", f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing docx package: %w", err)
	}

	return buf.Bytes(), nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Name, err)
	}
	return data, nil
}

func copyZipEntry(dst io.Writer, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	_, err = io.Copy(dst, rc)
	return err
}
