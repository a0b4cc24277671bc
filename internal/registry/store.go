package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Store persists the full entry sequence.
type Store interface {
	Load() ([]Entry, error)
	Save(entries []Entry) error
}

// FileStore keeps the entries in a flat JSON array on disk.
type FileStore struct {
	Path string

	last []byte // bytes of the most recent Load or Save
}

// NewFileStore returns a store backed by path. The file does not need to exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the file. A missing file is an empty registry.
func (s *FileStore) Load() ([]Entry, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		s.last = nil
		return []Entry{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}

	entries, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry file %s: %w", s.Path, err)
	}

	s.last = data
	return entries, nil
}

// Save writes the entries to a temp file next to Path and renames it into place.
func (s *FileStore) Save(entries []Entry) error {
	data, err := Encode(entries)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp registry file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace registry file: %w", err)
	}

	s.last = data
	return nil
}

// Changed reports whether the file on disk differs from what this store last
// read or wrote.
func (s *FileStore) Changed() (bool, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return s.last != nil, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to read registry file: %w", err)
	}
	return !bytes.Equal(data, s.last), nil
}

// Encode renders entries as a JSON array. An empty registry encodes as [].
func Encode(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode registry: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses a JSON array of entries. null decodes as an empty registry.
func Decode(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
