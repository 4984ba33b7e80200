// Package metadata selects a per-format strategy for reading and removing
// embedded metadata (EXIF, PDF document info, DOCX core properties, audio tags).
package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/metascrub/backend/internal/models"
)

// ErrUnsupported is returned when no handler is registered for an extension.
var ErrUnsupported = errors.New("unsupported file type for cleaning")

// Handler implements extraction and stripping for one format family.
type Handler interface {
	// Family reports the format family served by this handler
	Family() models.Family

	// Extensions lists the lower-cased extensions (with dot) this handler accepts
	Extensions() []string

	// Extract reads the file's native metadata into a string mapping
	Extract(ctx context.Context, path string) (models.Record, error)

	// Strip returns a copy of the file with its metadata removed
	Strip(ctx context.Context, path string) ([]byte, error)
}

// Logger is the subset of the application logger used by the dispatcher.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Options tunes the default handlers.
type Options struct {
	TempDir     string // scratch space for handlers that rewrite files in place
	JPEGQuality int
	AutoOrient  bool // bake EXIF orientation into pixels before dropping it
}

// Extraction is the outcome of Dispatcher.Extract.
type Extraction struct {
	Family   models.Family
	Metadata models.Record
	Err      error
}

// Failed reports whether extraction failed. Metadata then holds a single error key.
func (e Extraction) Failed() bool {
	return e.Err != nil
}

// Cleaned is the outcome of Dispatcher.Strip.
//
// On failure Data holds the error text and Ext is "txt". That payload is a
// sentinel and must never be delivered as if it were the cleaned file.
type Cleaned struct {
	Family models.Family
	Data   []byte
	Ext    string // output extension without the leading dot
	Err    error
}

// Failed reports whether stripping failed.
func (c Cleaned) Failed() bool {
	return c.Err != nil
}

// Dispatcher maps file extensions to format handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   Logger
}

// NewDispatcher creates a dispatcher with the image, PDF, document and audio handlers registered.
func NewDispatcher(logger Logger, opts Options) *Dispatcher {
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 95
	}

	d := &Dispatcher{
		handlers: make(map[string]Handler),
		logger:   logger,
	}

	d.Register(NewImageHandler(opts.JPEGQuality, opts.AutoOrient))
	d.Register(NewPDFHandler())
	d.Register(NewDocumentHandler())
	d.Register(NewAudioHandler(opts.TempDir))

	return d
}

// Register adds a handler for all of its extensions, replacing any previous owner.
func (d *Dispatcher) Register(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, ext := range h.Extensions() {
		d.handlers[strings.ToLower(ext)] = h
	}
}

// FamilyOf returns the format family for a path based on its extension.
func (d *Dispatcher) FamilyOf(path string) models.Family {
	if h, ok := d.lookup(path); ok {
		return h.Family()
	}
	return models.FamilyUnsupported
}

// Extract reads a file's metadata. Unsupported files yield the informational
// record; failures yield a record with a single error key and a non-nil Err.
func (d *Dispatcher) Extract(ctx context.Context, path string) Extraction {
	h, ok := d.lookup(path)
	if !ok {
		return Extraction{
			Family:   models.FamilyUnsupported,
			Metadata: models.InfoRecord(models.UnsupportedInfo),
		}
	}

	result := Extraction{Family: h.Family()}

	var record models.Record
	err := ctx.Err()
	if err == nil {
		err = guard(func() error {
			var extractErr error
			record, extractErr = h.Extract(ctx, path)
			return extractErr
		})
	}

	if err != nil {
		d.logger.Warnf("extract %s (%s): %v", filepath.Base(path), result.Family, err)
		result.Metadata = models.ErrorRecord(err.Error())
		result.Err = err
		return result
	}

	if record == nil {
		record = models.Record{}
	}
	d.logger.Debugf("extract %s (%s): %d keys", filepath.Base(path), result.Family, len(record))

	result.Metadata = record
	return result
}

// Strip produces a metadata-free copy of a file.
func (d *Dispatcher) Strip(ctx context.Context, path string) Cleaned {
	h, ok := d.lookup(path)
	if !ok {
		return failedClean(models.FamilyUnsupported, ErrUnsupported)
	}

	family := h.Family()

	var data []byte
	err := ctx.Err()
	if err == nil {
		err = guard(func() error {
			var stripErr error
			data, stripErr = h.Strip(ctx, path)
			return stripErr
		})
	}

	if err != nil {
		d.logger.Warnf("strip %s (%s): %v", filepath.Base(path), family, err)
		return failedClean(family, err)
	}

	d.logger.Debugf("strip %s (%s): %d bytes", filepath.Base(path), family, len(data))

	return Cleaned{
		Family: family,
		Data:   data,
		Ext:    extension(path),
	}
}

// StripTo writes the cleaned file to w. The text sentinel is never written.
func (d *Dispatcher) StripTo(ctx context.Context, path string, w io.Writer) (Cleaned, error) {
	cleaned := d.Strip(ctx, path)
	if cleaned.Failed() {
		return cleaned, cleaned.Err
	}
	if _, err := w.Write(cleaned.Data); err != nil {
		return cleaned, fmt.Errorf("writing cleaned output: %w", err)
	}
	return cleaned, nil
}

func (d *Dispatcher) lookup(path string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	h, ok := d.handlers[strings.ToLower(filepath.Ext(path))]
	return h, ok
}

func failedClean(family models.Family, err error) Cleaned {
	return Cleaned{
		Family: family,
		Data:   []byte(err.Error()),
		Ext:    "txt",
		Err:    err,
	}
}

func extension(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// guard turns a panic inside a format library into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing file: %v", r)
		}
	}()
	return fn()
}
