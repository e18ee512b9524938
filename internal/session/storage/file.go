package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore persists the session record as a single JSON file.
// Writes are atomic (temp file + rename) and the file is created 0600
// since it holds bearer credentials.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore writing to path. The parent directory is
// created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads and migrates the persisted record. Returns ErrNotFound when the
// file does not exist. A corrupt or unrecognized record is treated as absent
// so a bad file can never wedge startup.
func (s *FileStore) Load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: read %s: %w", s.path, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, ErrNotFound
	}
	migrated, ok := migrate(&rec)
	if !ok {
		return nil, ErrNotFound
	}
	return migrated, nil
}

// Save writes the record atomically, creating the parent directory if needed.
func (s *FileStore) Save(r *Record) error {
	if r == nil {
		return errors.New("storage: nil record")
	}
	r.Version = CurrentVersion
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("storage: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: replace %s: %w", s.path, err)
	}
	return nil
}

// Clear removes the persisted record. Missing file is not an error.
func (s *FileStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: remove %s: %w", s.path, err)
	}
	return nil
}

// migrate upgrades older record versions to CurrentVersion. Records written
// before versioning (version 0) carry the same fields as v1. Versions newer
// than this client understands are rejected.
func migrate(r *Record) (*Record, bool) {
	switch r.Version {
	case 0:
		r.Version = CurrentVersion
		return r, true
	case CurrentVersion:
		return r, true
	default:
		return nil, false
	}
}
