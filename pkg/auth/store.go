package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"civharvest/pkg/config"

	"github.com/mitchellh/go-homedir"
)

// Cache backends accepted in auth.cache_backend.
const (
	BackendFile      = "file"
	BackendKeyring   = "keyring"
	BackendEncrypted = "encrypted"
)

// TokenStore persists a single session token.
type TokenStore interface {
	// Load returns ErrTokenNotFound when nothing is stored.
	Load() (string, error)
	Save(token string) error
	Delete() error
	Name() string
}

// NewStore builds the token store selected by cfg.CacheBackend.
func NewStore(cfg config.AuthConfig) (TokenStore, error) {
	switch strings.ToLower(cfg.CacheBackend) {
	case "", BackendFile:
		return NewFileStore(CachePath(cfg)), nil
	case BackendKeyring:
		return NewKeyringStore()
	case BackendEncrypted:
		path := CachePath(cfg) + ".enc"
		return NewEncryptedFileStore(path, os.Getenv(cfg.PassphraseEnv))
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
}

// CachePath is the token cache file: CIVITAI_SESSION_CACHE when set,
// otherwise auth.cache_file.
func CachePath(cfg config.AuthConfig) string {
	path := cfg.CacheFile
	if env := os.Getenv(EnvSessionCache); env != "" {
		path = env
	}
	if path == "" {
		path = ".civitai_session"
	}
	if expanded, err := homedir.Expand(path); err == nil {
		path = expanded
	}
	return path
}

// FileStore keeps the bare token in a file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Name() string { return "file" }

// Path returns the cache file location.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Load() (string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrTokenNotFound
	}
	return token, nil
}

func (f *FileStore) Save(token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrInvalidToken
	}
	if dir := filepath.Dir(f.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	tempFile := f.path + ".tmp"
	if err := os.WriteFile(tempFile, []byte(token), 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tempFile, f.path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

func (f *FileStore) Delete() error {
	err := os.Remove(f.path)
	if os.IsNotExist(err) {
		return ErrTokenNotFound
	}
	return err
}
