package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"civharvest/pkg/records"

	"github.com/tidwall/gjson"
)

// JSONLWriter appends one record per line. Records whose image id is
// already in the file are skipped, so a resumed run does not duplicate
// lines.
type JSONLWriter struct {
	path string
	file *os.File
	buf  *bufio.Writer

	mu      sync.Mutex
	seen    map[int64]bool
	written int
}

// OpenJSONL opens path for appending and indexes the ids already in it.
func OpenJSONL(path string) (*JSONLWriter, error) {
	seen := make(map[int64]bool)
	if err := scanExisting(path, seen); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	return &JSONLWriter{
		path: path,
		file: f,
		buf:  bufio.NewWriter(f),
		seen: seen,
	}, nil
}

func scanExisting(path string, seen map[int64]bool) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if id := gjson.GetBytes(sc.Bytes(), "image_id"); id.Exists() {
			seen[id.Int()] = true
		}
	}
	return sc.Err()
}

// Write appends rec unless its id is already present. It reports whether
// a line was written.
func (w *JSONLWriter) Write(rec *records.MergedRecord) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.seen[rec.ImageID] {
		return false, nil
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("failed to encode record %d: %w", rec.ImageID, err)
	}
	if _, err := w.buf.Write(append(line, '\n')); err != nil {
		return false, fmt.Errorf("failed to write record %d: %w", rec.ImageID, err)
	}
	// flush per line so an interrupted run keeps what it wrote
	if err := w.buf.Flush(); err != nil {
		return false, fmt.Errorf("failed to flush %s: %w", w.path, err)
	}
	w.seen[rec.ImageID] = true
	w.written++
	return true, nil
}

// Has reports whether the file already holds a record for imageID.
func (w *JSONLWriter) Has(imageID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seen[imageID]
}

// Written is the number of lines appended by this writer.
func (w *JSONLWriter) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Path returns the file being written.
func (w *JSONLWriter) Path() string {
	return w.path
}

func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
