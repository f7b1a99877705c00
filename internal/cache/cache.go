package cache

import (
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// DB is a bbolt file holding one bucket per cache.
type DB struct {
	db *bolt.DB
}

// Store provides a persistent KV cache over a single bbolt bucket.
// It is safe for concurrent use by multiple goroutines; reads run in bbolt
// read transactions and never wait for writers.
type Store struct {
	db     *bolt.DB
	bucket []byte
}

// OpenDB initializes or opens a bbolt file at the given path.
func OpenDB(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	return &DB{db: db}, nil
}

// Bucket returns a Store for the named bucket, creating it if needed.
func (d *DB) Bucket(name string) (*Store, error) {
	bucket := []byte(name)
	if err := d.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		return nil, err
	}
	return &Store{db: d.db, bucket: bucket}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Put stores the entry under key, replacing any previous record.
func (s *Store) Put(key string, entry Entry) error {
	buf := encodeRecord(entry)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), buf)
	})
}

// Get returns the stored entry, fresh or not. A record that cannot be
// decoded yields ErrCorrupt.
func (s *Store) Get(key string) (Entry, error) {
	var raw []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(s.bucket).Get([]byte(key)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return Entry{}, err
	}
	if raw == nil {
		return Entry{}, ErrNotFound
	}
	return decodeRecord(raw)
}

// Delete removes a key.
func (s *Store) Delete(key string) (bool, error) {
	var existed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b.Get([]byte(key)) == nil {
			return nil
		}
		existed = true
		return b.Delete([]byte(key))
	})
	return existed, err
}

// Clear drops and recreates the bucket.
func (s *Store) Clear() (int, error) {
	var n int
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(s.bucket).ForEach(func(_, _ []byte) error {
			n++
			return nil
		}); err != nil {
			return err
		}
		if err := tx.DeleteBucket(s.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(s.bucket)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
