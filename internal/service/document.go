package service

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DocumentStore serves the GeoJSON documents under <data-dir>/geojson.
type DocumentStore struct {
	dir string
}

// NewDocumentStore creates a store rooted at dataDir/geojson.
func NewDocumentStore(dataDir string) *DocumentStore {
	return &DocumentStore{dir: filepath.Join(dataDir, "geojson")}
}

// Dir returns the store root.
func (s *DocumentStore) Dir() string {
	return s.dir
}

// List returns every .geojson and .json document, sorted by path.
func (s *DocumentStore) List() ([]DocumentFile, error) {
	files := []DocumentFile{}
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.dir && os.IsNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".geojson", ".json":
		default:
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return nil
		}
		files = append(files, DocumentFile{
			Path:     filepath.ToSlash(rel),
			Size:     formatSize(info.Size()),
			Bytes:    info.Size(),
			Modified: info.ModTime().UTC().Format(time.RFC3339),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ReadDocument reads the document at path, relative to the store root.
func (s *DocumentStore) ReadDocument(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: document %q", ErrNotFound, path)
		}
		return nil, err
	}
	return data, nil
}

func (s *DocumentStore) resolve(path string) (string, error) {
	if path == "" || filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return filepath.Join(s.dir, clean), nil
}
