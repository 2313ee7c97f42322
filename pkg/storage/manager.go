package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"civharvest/pkg/records"
)

// Manager owns the output directory and the export files written into it.
type Manager struct {
	outputDir string
	written   map[string]int
	mu        sync.RWMutex
}

// NewManager creates the output directory if needed.
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Manager{
		outputDir: outputDir,
		written:   make(map[string]int),
	}, nil
}

// Path returns the export file of a collection for the given extension.
func (m *Manager) Path(collectionID int64, ext string) string {
	return filepath.Join(m.outputDir, fmt.Sprintf("collection-%d.%s", collectionID, ext))
}

// SaveJSON writes recs as an indented JSON array, replacing any previous
// export of the collection.
func (m *Manager) SaveJSON(collectionID int64, recs []*records.MergedRecord) (string, error) {
	if recs == nil {
		recs = []*records.MergedRecord{}
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode records: %w", err)
	}

	filename := m.Path(collectionID, "json")
	if err := writeAtomic(filename, append(data, '\n')); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.written[filename] = len(recs)
	m.mu.Unlock()
	return filename, nil
}

// writeAtomic writes data through a temp file and rename.
func writeAtomic(filename string, data []byte) error {
	tempFile := filename + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = out.Write(data)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write export: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

// OutputDir returns the output directory path
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// WrittenCount returns how many records the last SaveJSON put in filename.
func (m *Manager) WrittenCount(filename string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.written[filename]
}
