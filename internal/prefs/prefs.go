// Package prefs persists small user preferences as JSON values in a state
// file. Every failure is soft: reads fall back to the caller's default and
// writes that cannot reach the disk are logged and kept in memory.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Keys shared by the application.
const (
	KeyMuted        = "radioMuted"
	KeyVolume       = "radioVolume"
	KeyActivePlayer = "activePlayer"
	KeyLastStation  = "lastStation"
)

// ErrUnavailable is returned when the preference file cannot be written.
var ErrUnavailable = errors.New("preference storage unavailable")

const (
	fileName   = "prefs.json"
	appDirName = "hlsradio"
)

// Dir returns the directory for application state.
// On Linux: $XDG_STATE_HOME/hlsradio or ~/.local/state/hlsradio
// On macOS: ~/Library/Application Support/hlsradio
func Dir() (string, error) {
	var baseDir string

	if runtime.GOOS == "darwin" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, "Library", "Application Support")
	} else if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		baseDir = xdgState
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".local", "state")
	}

	return filepath.Join(baseDir, appDirName), nil
}

// Store is a typed key/value view over the preference file. It is safe for
// concurrent use.
type Store struct {
	mu     sync.Mutex
	path   string
	values map[string]json.RawMessage
	log    hclog.Logger
}

// Open loads the store from the default location. When the location cannot
// be resolved the store works in memory only.
func Open(log hclog.Logger) *Store {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	dir, err := Dir()
	if err != nil {
		log.Warn("preferences will not be saved", "error", err)
		return NewMemory(log)
	}
	return OpenFile(filepath.Join(dir, fileName), log)
}

// NewMemory returns a store that is never written to disk.
func NewMemory(log hclog.Logger) *Store {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Store{values: map[string]json.RawMessage{}, log: log}
}

// OpenFile loads the store from path. A missing or corrupt file yields an
// empty store.
func OpenFile(path string, log hclog.Logger) *Store {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	s := &Store{path: path, values: map[string]json.RawMessage{}, log: log}
	if err := s.load(); err != nil {
		log.Warn("ignoring stored preferences", "path", path, "error", err)
	}
	return s
}

// Path returns the backing file, or "" for an in-memory store.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read preferences: %w", err)
	}
	values := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to unmarshal preferences: %w", err)
	}
	s.values = values
	return nil
}

// save writes all values. The caller holds mu.
func (s *Store) save() error {
	if s.path == "" {
		return ErrUnavailable
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("%w: failed to create state directory: %v", ErrUnavailable, err)
	}
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("%w: failed to write preferences: %v", ErrUnavailable, err)
	}
	return nil
}

// Get decodes the value stored under key into out. It reports false when
// the key is missing or holds a value of another type.
func (s *Store) Get(key string, out any) bool {
	s.mu.Lock()
	raw, ok := s.values[key]
	s.mu.Unlock()
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		s.log.Warn("unexpected preference value", "key", key, "error", err)
		return false
	}
	return true
}

// Set stores v under key and writes the file. The value is kept in memory
// even when writing fails.
func (s *Store) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal preference %q: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = raw
	return s.save()
}

// Delete removes key.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.save()
}

func (s *Store) Bool(key string, def bool) bool {
	var v bool
	if !s.Get(key, &v) {
		return def
	}
	return v
}

func (s *Store) Float(key string, def float64) float64 {
	var v float64
	if !s.Get(key, &v) {
		return def
	}
	return v
}

func (s *Store) String(key string, def string) string {
	var v string
	if !s.Get(key, &v) {
		return def
	}
	return v
}

func (s *Store) SetBool(key string, v bool)     { s.setSoft(key, v) }
func (s *Store) SetFloat(key string, v float64) { s.setSoft(key, v) }
func (s *Store) SetString(key string, v string) { s.setSoft(key, v) }

func (s *Store) setSoft(key string, v any) {
	if err := s.Set(key, v); err != nil {
		s.log.Warn("failed to save preference", "key", key, "error", err)
	}
}
