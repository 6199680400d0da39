package persistence

import (
	"encoding/json"
	"errors"
	"time"

	"go.etcd.io/bbolt"
)

const (
	// defaultBucket holds all identity records.
	defaultBucket = "kolibri"

	// defaultTimeout is how long Open waits for the file lock.
	defaultTimeout = 250 * time.Millisecond
)

// ErrBucketNotFound is returned when the identity bucket is missing.
var ErrBucketNotFound = errors.New("bucket not found")

// BoltStore keeps identities in a bbolt database, one key per broker account.
type BoltStore struct {
	db     *bbolt.DB
	bucket []byte
}

// OpenBoltStore opens or creates the database at path. A nil opts uses a
// short lock timeout.
func OpenBoltStore(path string, opts *bbolt.Options) (*BoltStore, error) {
	if opts == nil {
		opts = &bbolt.Options{Timeout: defaultTimeout}
	}
	db, err := bbolt.Open(path, 0600, opts)
	if err != nil {
		return nil, err
	}

	s := &BoltStore{db: db, bucket: []byte(defaultBucket)}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Load returns the identity for key.
func (s *BoltStore) Load(key string) (*Identity, error) {
	var id *Identity
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return ErrBucketNotFound
		}
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		id = &Identity{}
		return json.Unmarshal(data, id)
	})
	if err != nil {
		return nil, err
	}
	return id, nil
}

// Save stores id under its key.
func (s *BoltStore) Save(id *Identity) error {
	if err := stamp(id); err != nil {
		return err
	}
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return ErrBucketNotFound
		}
		return b.Put([]byte(id.Key), data)
	})
}

// Delete removes the identity for key.
func (s *BoltStore) Delete(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return ErrBucketNotFound
		}
		return b.Delete([]byte(key))
	})
}

// Keys returns all stored keys in byte order.
func (s *BoltStore) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return ErrBucketNotFound
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
