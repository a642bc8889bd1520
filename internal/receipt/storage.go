package receipt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// CaptureStorage keeps the original captured images on disk so the raw
// input survives for audit and re-processing.
type CaptureStorage interface {
	// Save writes a capture and returns its absolute path.
	Save(filename string, data []byte) (string, error)

	// Delete removes a capture.
	Delete(path string) error
}

// LocalCaptureStorage implements CaptureStorage on the local
// filesystem.
type LocalCaptureStorage struct {
	basePath string
}

// NewLocalCaptureStorage creates the storage directory if needed.
func NewLocalCaptureStorage(basePath string) (*LocalCaptureStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating capture directory: %w", err)
	}
	return &LocalCaptureStorage{basePath: basePath}, nil
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up phone-generated filenames: strips special
// characters, collapses whitespace and truncates the base name.
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "capture"
	}

	return base + ext
}

// Save writes a capture to disk under a sanitized name and returns the
// absolute path.
func (l *LocalCaptureStorage) Save(filename string, data []byte) (string, error) {
	path := filepath.Join(l.basePath, sanitizeFilename(filename))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing capture: %w", err)
	}
	return path, nil
}

// Delete removes a capture from disk.
func (l *LocalCaptureStorage) Delete(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting capture: %w", err)
	}
	return nil
}
