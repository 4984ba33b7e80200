package models

import "time"

// FileInfo represents metadata about an uploaded or cleaned file on disk.
type FileInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Path       string    `json:"-"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
	Status     string    `json:"status"` // "uploaded", "cleaned"
}
