// handlers_metadata.go - Metadata analysis and stripping handlers
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/h2non/filetype"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/metascrub/backend/internal/metadata"
	"github.com/metascrub/backend/internal/models"
	"github.com/metascrub/backend/internal/storage"
)

const (
	uploadField     = "file"
	mimeMsgpack     = "application/msgpack"
	mimeOctetStream = "application/octet-stream"
)

// analyzeResponse is the body of a successful /analyze call.
type analyzeResponse struct {
	Metadata models.Record `json:"metadata" msgpack:"metadata"`
	Type     string        `json:"type" msgpack:"type"`
}

// MetadataHandlerImpl implements the MetadataHandler interface
type MetadataHandlerImpl struct {
	store      storage.Store
	dispatcher Dispatcher
	detect     func(path string) string
}

// NewMetadataHandler creates a new metadata handler instance
func NewMetadataHandler(store storage.Store, dispatcher Dispatcher) MetadataHandler {
	return &MetadataHandlerImpl{
		store:      store,
		dispatcher: dispatcher,
		detect:     metadata.DetectType,
	}
}

// HandleAnalyze saves the uploaded file and returns its metadata and sniffed type.
// Extraction failures are reported inside the metadata record, not as an HTTP error.
func (h *MetadataHandlerImpl) HandleAnalyze(c echo.Context) error {
	info, err := h.receiveUpload(c)
	if err != nil {
		return err
	}

	res := h.dispatcher.Extract(c.Request().Context(), info.Path)
	resp := analyzeResponse{
		Metadata: res.Metadata,
		Type:     h.detect(info.Path),
	}

	c.Logger().Infof("analyze %s [%s] family=%s keys=%d failed=%t",
		info.Name, info.ID, res.Family, len(res.Metadata), res.Failed())

	if acceptsMsgpack(c) {
		data, err := msgpack.Marshal(resp)
		if err != nil {
			return NewInternalError("failed to encode msgpack", err)
		}
		return c.Blob(http.StatusOK, mimeMsgpack, data)
	}

	return c.JSON(http.StatusOK, resp)
}

// HandleStrip saves the uploaded file, removes its metadata and returns the
// cleaned copy as an attachment named cleaned_<original>.
func (h *MetadataHandlerImpl) HandleStrip(c echo.Context) error {
	info, err := h.receiveUpload(c)
	if err != nil {
		return err
	}

	cleaned := h.dispatcher.Strip(c.Request().Context(), info.Path)
	if cleaned.Failed() {
		c.Logger().Warnf("strip %s [%s] failed: %v", info.Name, info.ID, cleaned.Err)
		return NewUnprocessableError(cleaned.Err.Error())
	}

	saved, err := h.store.SaveCleaned(info.Name, cleaned.Data)
	if err != nil {
		return NewInternalError("failed to save cleaned file", err)
	}

	c.Logger().Infof("strip %s [%s] family=%s bytes=%d", info.Name, info.ID, cleaned.Family, len(cleaned.Data))

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", saved.Name))
	return c.Blob(http.StatusOK, contentType(cleaned.Ext), cleaned.Data)
}

// receiveUpload stores the multipart "file" field in the uploads folder.
func (h *MetadataHandlerImpl) receiveUpload(c echo.Context) (*models.FileInfo, error) {
	file, err := c.FormFile(uploadField)
	if err != nil {
		// A part with an empty filename is parsed as a plain form value.
		if form := c.Request().MultipartForm; form != nil {
			if _, ok := form.Value[uploadField]; ok {
				return nil, NewBadRequestError("No file selected", nil)
			}
		}
		return nil, NewBadRequestError("No file uploaded", err)
	}
	if file.Filename == "" {
		return nil, NewBadRequestError("No file selected", nil)
	}

	src, err := file.Open()
	if err != nil {
		return nil, NewBadRequestError("failed to open uploaded file", err)
	}
	defer src.Close()

	info, err := h.store.SaveUpload(file.Filename, src)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidName) {
			return nil, NewBadRequestError("No file selected", err)
		}
		return nil, NewInternalError("failed to save file", err)
	}

	return info, nil
}

func acceptsMsgpack(c echo.Context) bool {
	for _, part := range strings.Split(c.Request().Header.Get(echo.HeaderAccept), ",") {
		mediaType, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(mediaType, mimeMsgpack) || strings.EqualFold(mediaType, "application/x-msgpack") {
			return true
		}
	}
	return false
}

// contentType maps an output extension (without dot) to a MIME type.
func contentType(ext string) string {
	if kind := filetype.GetType(ext); kind != filetype.Unknown && kind.MIME.Value != "" {
		return kind.MIME.Value
	}
	return mimeOctetStream
}
