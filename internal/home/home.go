// Package home manages the folio home directory layout (~/.folio).
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the folio home directory.
	DefaultDirName = ".folio"

	// DataDirName is the subdirectory for book data and scans.
	DataDirName = "data"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the folio home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.folio).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// DataPath returns the path to the data directory.
func (d *Dir) DataPath() string {
	return filepath.Join(d.path, DataDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.DataPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// SourceImagesDir returns the directory for source images of a book.
func (d *Dir) SourceImagesDir(bookID string) string {
	return filepath.Join(d.path, "source_images", bookID)
}

// SourceImagePath returns the path to a specific page image.
// Page numbers are 1-indexed.
func (d *Dir) SourceImagePath(bookID string, pageNum int) string {
	return filepath.Join(d.SourceImagesDir(bookID), fmt.Sprintf("page_%04d.png", pageNum))
}

// SourceImageURL returns the file URL a page record stores for its image.
func (d *Dir) SourceImageURL(bookID string, pageNum int) string {
	return "file://" + d.SourceImagePath(bookID, pageNum)
}

// EnsureSourceImagesDir creates the source images directory for a book.
func (d *Dir) EnsureSourceImagesDir(bookID string) error {
	return os.MkdirAll(d.SourceImagesDir(bookID), 0o755)
}

// OriginalsDir returns the directory for original PDF files of a book.
func (d *Dir) OriginalsDir(bookID string) string {
	return filepath.Join(d.SourceImagesDir(bookID), "originals")
}

// EnsureOriginalsDir creates the originals directory for a book's PDFs.
func (d *Dir) EnsureOriginalsDir(bookID string) error {
	return os.MkdirAll(d.OriginalsDir(bookID), 0o755)
}

// ModelPath returns the path where the fitted gutter model is stored.
func (d *Dir) ModelPath() string {
	return filepath.Join(d.path, "gutter_model.json")
}
