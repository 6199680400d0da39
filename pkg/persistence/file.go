package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// fileState is the on-disk layout of a FileStore.
type fileState struct {
	Version    int                  `json:"version"`
	SavedAt    time.Time            `json:"saved_at"`
	Identities map[string]*Identity `json:"identities,omitempty"`
}

// FileStore keeps identities in a single JSON file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by the JSON file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) read() (*fileState, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &fileState{Identities: make(map[string]*Identity)}, nil
	}
	if err != nil {
		return nil, err
	}

	state := &fileState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}
	if state.Identities == nil {
		state.Identities = make(map[string]*Identity)
	}
	return state, nil
}

func (s *FileStore) write(state *fileState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	state.SavedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// Replace atomically.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load returns the identity for key.
func (s *FileStore) Load(key string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		return nil, err
	}
	return state.Identities[key], nil
}

// Save stores id, replacing any identity with the same key.
func (s *FileStore) Save(id *Identity) error {
	if err := stamp(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		return err
	}
	state.Identities[id.Key] = id
	return s.write(state)
}

// Delete removes the identity for key. Missing keys are not an error.
func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := state.Identities[key]; !ok {
		return nil
	}
	delete(state.Identities, key)
	return s.write(state)
}

// Clear removes the backing file.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}
