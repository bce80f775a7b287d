package record

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Storage archives the raw OCR text a record was extracted from
type Storage interface {
	// SaveText archives the text of a record and returns the archive name
	SaveText(recordID, text string) (string, error)

	// Text returns the archived text stored under name
	Text(name string) ([]byte, error)

	// DeleteText removes archived text
	DeleteText(name string) error
}

// LocalStorage keeps one <record id>.txt file per record in a directory
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the archive directory if needed
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating text archive %s: %w", basePath, err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// textName maps a record ID to its archive file. Path elements are dropped
// so nothing is written outside the archive directory.
func textName(recordID string) (string, error) {
	base := filepath.Base(strings.TrimSpace(recordID))
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid record id %q", recordID)
	}
	return base + ".txt", nil
}

func (l *LocalStorage) path(name string) string {
	return filepath.Join(l.basePath, filepath.Base(name))
}

// SaveText writes the text as <record id>.txt, replacing any earlier copy
func (l *LocalStorage) SaveText(recordID, text string) (string, error) {
	name, err := textName(recordID)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(l.path(name), []byte(text), 0644); err != nil {
		return "", fmt.Errorf("archiving text of record %s: %w", recordID, err)
	}
	return name, nil
}

// Text reads archived text. A missing file wraps ErrNotFound.
func (l *LocalStorage) Text(name string) ([]byte, error) {
	data, err := os.ReadFile(l.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("text %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading text %s: %w", name, err)
	}
	return data, nil
}

// DeleteText removes archived text. A missing file wraps ErrNotFound.
func (l *LocalStorage) DeleteText(name string) error {
	err := os.Remove(l.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("text %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("removing text %s: %w", name, err)
	}
	return nil
}
