package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, s Store) {
	t.Helper()

	got, err := s.Load("missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	key := Key("wss://broker.example.com:443/", "Plant", "Alice")
	require.NoError(t, s.Save(&Identity{Key: key, ClientID: "c-1", Project: "plant", User: "alice"}))

	got, err = s.Load(key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c-1", got.ClientID)
	assert.Equal(t, "alice", got.User)
	assert.False(t, got.SavedAt.IsZero())

	require.NoError(t, s.Save(&Identity{Key: key, ClientID: "c-2"}))
	got, err = s.Load(key)
	require.NoError(t, err)
	assert.Equal(t, "c-2", got.ClientID)

	require.NoError(t, s.Delete(key))
	got, err = s.Load(key)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.NoError(t, s.Delete(key))
	assert.ErrorIs(t, s.Save(&Identity{ClientID: "x"}), ErrEmptyKey)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "identity.json")
	s := NewFileStore(path)
	testStore(t, s)
	require.NoError(t, s.Close())
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	require.NoError(t, NewFileStore(path).Save(&Identity{Key: "k", ClientID: "c"}))

	got, err := NewFileStore(path).Load("k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c", got.ClientID)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileStore(path).Load("k")
	assert.Error(t, err)
}

func TestFileStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	s := NewFileStore(path)
	require.NoError(t, s.Save(&Identity{Key: "k", ClientID: "c"}))

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestBoltStore(t *testing.T) {
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "identity.db"), nil)
	require.NoError(t, err)
	defer s.Close()
	testStore(t, s)
}

func TestBoltStoreKeys(t *testing.T) {
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "identity.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(&Identity{Key: "b", ClientID: "2"}))
	require.NoError(t, s.Save(&Identity{Key: "a", ClientID: "1"}))

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(filepath.Join(dir, "identity.bolt"))
	require.NoError(t, err)
	assert.IsType(t, &BoltStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(filepath.Join(dir, "identity.json"))
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "plant/alice@wss://h:1/", Key("wss://h:1/", "Plant", "ALICE"))
}
