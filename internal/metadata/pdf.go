package metadata

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/metascrub/backend/internal/models"
)

var (
	pdfcpuInit sync.Once

	startXRef   = []byte("startxref")
	trailerInfo = regexp.MustCompile(`/Info\s*\d+\s+\d+\s+R`)
)

// PDFHandler reads and clears the document information dictionary.
type PDFHandler struct{}

// NewPDFHandler creates a PDF handler.
func NewPDFHandler() *PDFHandler {
	// pdfcpu otherwise installs a config dir under the user's home on first use
	pdfcpuInit.Do(func() {
		model.ConfigPath = "disable"
	})
	return &PDFHandler{}
}

func (h *PDFHandler) Family() models.Family { return models.FamilyPDF }

func (h *PDFHandler) Extensions() []string { return []string{".pdf"} }

// Extract returns every info dictionary entry keyed as "/<Name>".
func (h *PDFHandler) Extract(ctx context.Context, path string) (models.Record, error) {
	pdfCtx, err := readPDF(path)
	if err != nil {
		return nil, err
	}

	record := models.Record{}
	if pdfCtx.Info == nil {
		return record, nil
	}

	info, err := pdfCtx.DereferenceDict(*pdfCtx.Info)
	if err != nil {
		return nil, fmt.Errorf("reading info dictionary: %w", err)
	}

	for key, value := range info {
		text, err := pdfText(pdfCtx, value)
		if err != nil {
			return nil, fmt.Errorf("decoding /%s: %w", key, err)
		}
		record["/"+key] = text
	}

	return record, nil
}

// Strip drops the info dictionary and the catalog's XMP stream and rewrites the
// document. Only objects reachable from the catalog are written back, and the
// info dictionary the writer stamps below PDF 2.0 is unlinked from the trailer.
func (h *PDFHandler) Strip(ctx context.Context, path string) ([]byte, error) {
	pdfCtx, err := readPDF(path)
	if err != nil {
		return nil, err
	}

	if err := api.ValidateContext(pdfCtx); err != nil {
		return nil, fmt.Errorf("validating pdf: %w", err)
	}

	pdfCtx.Info = nil

	root, err := pdfCtx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	root.Delete("Metadata")
	root.Delete("PieceInfo")

	var buf bytes.Buffer
	if err := api.WriteContext(pdfCtx, &buf); err != nil {
		return nil, fmt.Errorf("writing pdf: %w", err)
	}

	return dropTrailerInfo(buf.Bytes())
}

// dropTrailerInfo blanks the /Info reference in the last cross-reference
// section's trailer. The entry is overwritten with spaces so no byte offset
// in the file moves.
func dropTrailerInfo(pdf []byte) ([]byte, error) {
	i := bytes.LastIndex(pdf, startXRef)
	if i < 0 {
		return nil, fmt.Errorf("writing pdf: missing startxref")
	}

	fields := bytes.Fields(pdf[i+len(startXRef):])
	if len(fields) == 0 {
		return nil, fmt.Errorf("writing pdf: missing xref offset")
	}
	offset, err := strconv.Atoi(string(fields[0]))
	if err != nil || offset < 0 || offset >= i {
		return nil, fmt.Errorf("writing pdf: bad xref offset %q", fields[0])
	}

	loc := trailerInfo.FindIndex(pdf[offset:i])
	if loc == nil {
		return pdf, nil
	}
	for j := offset + loc[0]; j < offset+loc[1]; j++ {
		pdf[j] = ' '
	}
	return pdf, nil
}

func readPDF(path string) (*model.Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	pdfCtx, err := api.ReadContext(f, model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("reading pdf: %w", err)
	}
	return pdfCtx, nil
}

func pdfText(pdfCtx *model.Context, o types.Object) (string, error) {
	o, err := pdfCtx.Dereference(o)
	if err != nil {
		return "", err
	}

	switch v := o.(type) {
	case nil:
		return "", nil
	case types.StringLiteral:
		return types.StringLiteralToString(v)
	case types.HexLiteral:
		return types.HexLiteralToString(v)
	case types.Name:
		return "/" + string(v), nil
	default:
		return o.String(), nil
	}
}
