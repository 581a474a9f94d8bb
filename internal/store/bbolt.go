package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// keysBucket is the single top-level bucket holding one JSON entry per key.
const keysBucket = "keys"

// BoltStore implements the Store interface using BoltDB.
// Each command runs in its own bolt transaction.
type BoltStore struct {
	commands
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store at the given path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb at %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(keysBucket)); err != nil {
			return fmt.Errorf("create keys bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltStore{db: db}
	s.commands = commands{ks: s}
	return s, nil
}

func loadEntry(b *bolt.Bucket, key string) (*entry, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return nil, nil
	}
	e := &entry{}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("unmarshal key %s: %w", key, err)
	}
	return e, nil
}

func (s *BoltStore) view(key string, fn func(e *entry) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		e, err := loadEntry(tx.Bucket([]byte(keysBucket)), key)
		if err != nil {
			return err
		}
		return fn(e)
	})
}

func (s *BoltStore) update(key string, fn func(e *entry) (*entry, error)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(keysBucket))
		e, err := loadEntry(b, key)
		if err != nil {
			return err
		}
		next, err := fn(e)
		if err != nil {
			return err
		}
		if next.empty() {
			return b.Delete([]byte(key))
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal key %s: %w", key, err)
		}
		return b.Put([]byte(key), data)
	})
}

func (s *BoltStore) scan(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(keysBucket)).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}

func (s *BoltStore) remove(keys []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(keysBucket))
		for _, key := range keys {
			if err := b.Delete([]byte(key)); err != nil {
				return fmt.Errorf("delete key %s: %w", key, err)
			}
		}
		return nil
	})
}

// Close releases resources held by the store.
func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
