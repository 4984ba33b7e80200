// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/metascrub/backend/internal/metadata"
)

// MetadataHandler handles metadata analysis and cleaning of uploads
type MetadataHandler interface {
	HandleAnalyze(c echo.Context) error
	HandleStrip(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// Dispatcher runs format-specific extraction and stripping.
// This allows mocking in tests
type Dispatcher interface {
	Extract(ctx context.Context, path string) metadata.Extraction
	Strip(ctx context.Context, path string) metadata.Cleaned
}
