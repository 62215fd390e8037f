package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	appName     = "lumen"
	devicesFile = "devices.yaml"
)

// Store is the durable key-value registry of paired devices.
// Implementations must be safe for concurrent use within one process.
// Writes are last-writer-wins; callers that own only part of a record
// (e.g. the OTA flag) must go through Merge so they never clobber fields
// written by another component.
type Store interface {
	// List returns all records, sorted by ID.
	List() ([]*Record, error)

	// Get returns the record for id, or nil if no record exists.
	Get(id string) (*Record, error)

	// Put creates or replaces the record for rec.ID.
	Put(rec *Record) error

	// Merge performs a read-modify-write: it loads the current record for
	// id (or a fresh one if none exists), applies fn to it, and writes it
	// back. Fields fn does not touch are preserved.
	Merge(id string, fn func(*Record)) (*Record, error)

	// Delete removes the record for id. Deleting a missing id is not an
	// error.
	Delete(id string) error
}

// collection is the on-disk shape of the registry file.
type collection struct {
	Version int                `yaml:"version"`
	Devices map[string]*Record `yaml:"devices"`
}

// FileStore persists records as a single YAML collection keyed by device ID.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// GetConfigDir returns the OS-appropriate configuration directory for the
// application. This follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/lumen or $HOME/.config/lumen
//   - macOS: $HOME/.config/lumen (following XDG convention on macOS)
//   - Windows: %LOCALAPPDATA%\lumen
func GetConfigDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
			}
			baseDir = filepath.Join(userProfile, "AppData", "Local", appName)
		} else {
			baseDir = filepath.Join(localAppData, appName)
		}

	default:
		// Linux, macOS and other Unix-like systems: XDG_CONFIG_HOME or $HOME/.config
		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome != "" {
			baseDir = filepath.Join(xdgConfigHome, appName)
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot determine home directory: %w", err)
			}
			baseDir = filepath.Join(homeDir, ".config", appName)
		}
	}

	return baseDir, nil
}

// DefaultPath returns the default path of the registry file.
func DefaultPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, devicesFile), nil
}

// NewFileStore creates a file-backed store at path. If path is empty the
// default location under the user config directory is used.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return &FileStore{path: path}, nil
}

// load reads the collection from disk. A missing file yields an empty
// collection. Callers must hold s.mu.
func (s *FileStore) load() (*collection, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &collection{Version: 1, Devices: make(map[string]*Record)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}

	var col collection
	if err := yaml.Unmarshal(data, &col); err != nil {
		return nil, fmt.Errorf("failed to parse registry file: %w", err)
	}
	if col.Version != 1 {
		return nil, fmt.Errorf("unsupported registry version: %d (expected 1)", col.Version)
	}
	if col.Devices == nil {
		col.Devices = make(map[string]*Record)
	}
	return &col, nil
}

// save writes the collection to disk atomically (write to a temporary file,
// then rename). Callers must hold s.mu.
func (s *FileStore) save(col *collection) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	data, err := yaml.Marshal(col)
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	header := []byte(`# Lumen paired devices
# One entry per light, keyed by device ID.
# WiFi credentials are NEVER stored in this file.

`)
	data = append(header, data...)

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary registry file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save registry file: %w", err)
	}

	return nil
}

// List returns all records, sorted by ID.
func (s *FileStore) List() ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.load()
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(col.Devices))
	for _, rec := range col.Devices {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// Get returns the record for id, or nil if no record exists.
func (s *FileStore) Get(id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.load()
	if err != nil {
		return nil, err
	}
	return col.Devices[id].Clone(), nil
}

// Put creates or replaces the record for rec.ID.
func (s *FileStore) Put(rec *Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record has empty device ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.load()
	if err != nil {
		return err
	}
	col.Devices[rec.ID] = rec.Clone()
	return s.save(col)
}

// Merge performs a read-modify-write for id.
func (s *FileStore) Merge(id string, fn func(*Record)) (*Record, error) {
	if id == "" {
		return nil, fmt.Errorf("merge with empty device ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.load()
	if err != nil {
		return nil, err
	}

	rec := col.Devices[id]
	if rec == nil {
		rec = &Record{ID: id}
	} else {
		rec = rec.Clone()
	}
	fn(rec)
	rec.ID = id // The ID is immutable regardless of what fn did

	col.Devices[id] = rec
	if err := s.save(col); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// Delete removes the record for id.
func (s *FileStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.load()
	if err != nil {
		return err
	}
	delete(col.Devices, id)
	return s.save(col)
}
