// Package localstate persists the small amount of per-device session state
// that survives restarts, currently just the last active workspace id.
package localstate

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
)

const stateFileName = "state.json"

type persisted struct {
	CurrentWorkspaceID string `json:"currentWorkspaceId,omitempty"`
}

// State is a file-backed key store. The zero value is not usable; construct
// with Open or OpenPath.
type State struct {
	mu   sync.Mutex
	path string
	data persisted
}

// Open places the state file in the XDG data directory for appName.
func Open(appName string) (*State, error) {
	dir := filepath.Join(xdg.DataHome, appName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return OpenPath(filepath.Join(dir, stateFileName))
}

// OpenPath loads state from an explicit file path. A missing file is an
// empty state, not an error.
func OpenPath(path string) (*State, error) {
	s := &State{path: path}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *State) CurrentWorkspaceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CurrentWorkspaceID
}

func (s *State) SetCurrentWorkspaceID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.CurrentWorkspaceID = id
	return s.flush()
}

// flush writes the whole state file. Caller holds the lock.
func (s *State) flush() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o600)
}
