package tempstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var filesBucket = []byte("files")

// BoltIndex is an Index persisted in a bbolt file, so createdAt survives
// restarts and does not depend on filesystem mtimes.
type BoltIndex struct {
	path string
	db   *bolt.DB
}

// OpenBoltIndex opens or creates the index file at path.
func OpenBoltIndex(path string) (*BoltIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(filesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltIndex{path: path, db: db}, nil
}

// Path returns the index file location.
func (b *BoltIndex) Path() string { return b.path }

func (b *BoltIndex) Put(name string, createdAt time.Time) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(filesBucket).Put([]byte(name), []byte(createdAt.UTC().Format(time.RFC3339Nano)))
	})
}

func (b *BoltIndex) Get(name string) (time.Time, bool, error) {
	var (
		t     time.Time
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(filesBucket).Get([]byte(name))
		if v == nil {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, string(v))
		if err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		t, found = parsed, true
		return nil
	})
	return t, found, err
}

func (b *BoltIndex) Delete(name string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(filesBucket).Delete([]byte(name))
	})
}

// Range visits entries in key order. Undecodable values are skipped.
func (b *BoltIndex) Range(fn func(name string, createdAt time.Time) bool) error {
	type entry struct {
		name string
		at   time.Time
	}
	var entries []entry
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(filesBucket).ForEach(func(k, v []byte) error {
			t, err := time.Parse(time.RFC3339Nano, string(v))
			if err != nil {
				return nil
			}
			entries = append(entries, entry{name: string(k), at: t})
			return nil
		})
	})
	if err != nil {
		return err
	}
	// fn may write to the index, which would deadlock inside View.
	for _, e := range entries {
		if !fn(e.name, e.at) {
			break
		}
	}
	return nil
}

func (b *BoltIndex) Close() error { return b.db.Close() }
