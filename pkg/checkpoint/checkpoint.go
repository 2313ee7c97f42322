package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"civharvest/pkg/logger"

	"github.com/mitchellh/go-homedir"
)

// CurrentVersion is bumped whenever the file layout changes.
const CurrentVersion = 1

// Checkpoint is the pagination state of an interrupted harvest.
type Checkpoint struct {
	CollectionID int64 `json:"collection_id"`
	// Cursor is the next cursor as raw JSON, so a numeric cursor keeps its
	// exact digits. Empty means the first page.
	Cursor     json.RawMessage   `json:"cursor,omitempty"`
	SeenIDs    []int64           `json:"seen_ids"`
	PageCounts []int             `json:"page_counts"`
	Fetches    int               `json:"fetches"`
	Items      []json.RawMessage `json:"items"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Version    int               `json:"version"`
}

// Manager stores the checkpoint of one collection
type Manager struct {
	checkpointPath string
	logger         logger.Logger
}

// NewManager creates a manager for collectionID under the user data dir.
func NewManager(collectionID int64) (*Manager, error) {
	dataDir, err := getDataDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}
	return NewManagerInDir(filepath.Join(dataDir, "checkpoints"), collectionID)
}

// NewManagerInDir creates a manager whose file lives in dir.
func NewManagerInDir(dir string, collectionID int64) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	return &Manager{
		checkpointPath: filepath.Join(dir, fmt.Sprintf("collection-%d.checkpoint.json", collectionID)),
		logger:         logger.GetLogger(),
	}, nil
}

// SetLogger replaces the manager's logger.
func (m *Manager) SetLogger(l logger.Logger) {
	m.logger = l
}

// Path returns the checkpoint file location.
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Load returns the stored checkpoint, or nil when none exists.
func (m *Manager) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported checkpoint version %d", cp.Version)
	}

	m.logger.InfoWithFields("checkpoint loaded", map[string]interface{}{
		"collection_id": cp.CollectionID,
		"items":         len(cp.Items),
		"fetches":       cp.Fetches,
		"updated_at":    cp.UpdatedAt,
	})

	return &cp, nil
}

// Save writes the checkpoint atomically through a temp file and rename.
func (m *Manager) Save(cp *Checkpoint) error {
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	cp.Version = CurrentVersion

	tempPath := m.checkpointPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cp); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.checkpointPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("checkpoint saved", map[string]interface{}{
		"collection_id": cp.CollectionID,
		"items":         len(cp.Items),
		"cursor":        string(cp.Cursor),
	})

	return nil
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	m.logger.Debug("checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// Info summarizes the stored checkpoint for display.
func (m *Manager) Info() (map[string]interface{}, error) {
	cp, err := m.Load()
	if err != nil || cp == nil {
		return nil, err
	}

	return map[string]interface{}{
		"collection_id": cp.CollectionID,
		"items":         len(cp.Items),
		"pages":         len(cp.PageCounts),
		"created_at":    cp.CreatedAt,
		"updated_at":    cp.UpdatedAt,
		"age":           time.Since(cp.UpdatedAt),
	}, nil
}

// getDataDirectory returns the per-OS data directory for civharvest
func getDataDirectory() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}

	var dataDir string
	switch runtime.GOOS {
	case "darwin":
		dataDir = filepath.Join(home, "Library", "Application Support", "civharvest")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "civharvest")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			dataDir = filepath.Join(xdg, "civharvest")
		} else {
			dataDir = filepath.Join(home, ".local", "share", "civharvest")
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}
