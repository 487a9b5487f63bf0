package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the distill home directory.
	DefaultDirName = ".distill"

	// UploadsDirName is the subdirectory for uploaded book PDFs.
	UploadsDirName = "uploads"

	// DefraDirName is the subdirectory for DefraDB data.
	DefraDirName = "defradb"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the distill home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.distill).
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

// UploadsPath returns the path to the uploads directory.
func (d *Dir) UploadsPath() string {
	return filepath.Join(d.path, UploadsDirName)
}

// DefraDataPath returns the path to the DefraDB data directory.
func (d *Dir) DefraDataPath() string {
	return filepath.Join(d.path, DefraDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.UploadsPath(), d.DefraDataPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
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

// UploadPath returns the path for a stored upload of a book.
func (d *Dir) UploadPath(bookID, fileName string) string {
	return filepath.Join(d.UploadsPath(), bookID, filepath.Base(fileName))
}

// EnsureUploadDir creates the upload directory for a book.
func (d *Dir) EnsureUploadDir(bookID string) error {
	return os.MkdirAll(filepath.Join(d.UploadsPath(), bookID), 0o755)
}
