package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/starford/eihwaz/internal/models"
)

// JSONFile implements Provider backed by a single JSON document on disk.
type JSONFile struct {
	path string
}

// NewJSONFile creates a provider for the store document at path.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

// Path returns the location of the store document.
func (j *JSONFile) Path() string {
	return j.path
}

// Exists reports whether the store document is present on disk.
func (j *JSONFile) Exists() bool {
	_, err := os.Stat(j.path)
	return err == nil
}

// Load reads the store document and rebuilds the tag index. A missing
// file yields an empty store.
func (j *JSONFile) Load() (*models.Store, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.NewStore(), nil
		}
		return nil, fmt.Errorf("storage: read %s: %w", j.path, err)
	}
	st := models.NewStore()
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("storage: parse %s: %w", j.path, err)
	}
	st.Reindex()
	return st, nil
}

// Save atomically writes the store document: tmp file → fsync → rename.
// Readers never observe a partial write.
func (j *JSONFile) Save(st *models.Store) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(j.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".eihwaz-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, j.path); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}
