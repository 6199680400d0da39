package persistence

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// StateVersion is the current version of the identity record format.
const StateVersion = 1

// ErrEmptyKey is returned for identities without a broker key.
var ErrEmptyKey = errors.New("empty identity key")

// Identity is the persisted login identity of one consumer at one broker.
type Identity struct {
	// Key identifies the broker account, see Key.
	Key string `json:"key"`

	// ClientID is the id the broker returned from kolibri.login.
	ClientID string `json:"client_id"`

	// Project and User are informational copies of the login parameters.
	Project string `json:"project,omitempty"`
	User    string `json:"user,omitempty"`

	// SavedAt is when the identity was last saved.
	SavedAt time.Time `json:"saved_at"`
}

// Key builds the store key for a broker URL and login user.
func Key(url, project, user string) string {
	return strings.ToLower(project) + "/" + strings.ToLower(user) + "@" + url
}

// Store loads and saves identities.
type Store interface {
	// Load returns the identity for key, or nil, nil if none is stored.
	Load(key string) (*Identity, error)
	Save(id *Identity) error
	Delete(key string) error
	Close() error
}

// Open opens the store at path. Files ending in .db or .bolt are opened
// as BoltStore, everything else as FileStore.
func Open(path string) (Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".bolt":
		return OpenBoltStore(path, nil)
	default:
		return NewFileStore(path), nil
	}
}

func stamp(id *Identity) error {
	if id.Key == "" {
		return ErrEmptyKey
	}
	if id.SavedAt.IsZero() {
		id.SavedAt = time.Now()
	}
	return nil
}
