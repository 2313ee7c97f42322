package auth

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// WriteEnvFile sets key=value in the dotenv file at path, keeping every
// other entry. The file is created when missing.
func WriteEnvFile(path, key, value string) error {
	env := map[string]string{}
	if _, err := os.Stat(path); err == nil {
		existing, err := godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		env = existing
	}
	env[key] = value

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return os.Chmod(path, 0600)
}

// RemoveEnvKey deletes key from the dotenv file at path. A missing file or
// key is not an error.
func RemoveEnvKey(path, key string) error {
	env, err := godotenv.Read(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if _, ok := env[key]; !ok {
		return nil
	}
	delete(env, key)
	return godotenv.Write(env, path)
}
