// Package service holds the file backed stores of the slackmap server:
// category styles and the local GeoJSON documents.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown styles or documents.
	ErrNotFound = errors.New("not found")
	// ErrInvalidPath is returned for document paths escaping the store.
	ErrInvalidPath = errors.New("invalid document path")
)

// DocumentFile describes a stored GeoJSON document.
type DocumentFile struct {
	Path     string `json:"path" doc:"Path relative to the document store" example:"lines/zurich.geojson"`
	Size     string `json:"size" doc:"Human-readable file size" example:"1.2 MB"`
	Bytes    int64  `json:"bytes" doc:"File size in bytes" example:"1258291"`
	Modified string `json:"modified" doc:"Last modification time (RFC 3339)"`
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
