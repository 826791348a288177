package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// MetadataStore persists the tracker's key -> last access map. Save always
// receives the complete map and replaces whatever was stored before.
type MetadataStore interface {
	Load() (map[string]time.Time, error)
	Save(entries map[string]time.Time) error
	Close() error
}

var (
	trackerBucket = []byte("disk_cache_tracker")
	entriesKey    = []byte("entries")
)

// BoltStore keeps the tracker map as one JSON document in a bbolt file.
type BoltStore struct {
	db *bolt.DB
}

func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create metadata directory: %w", err)
	}

	// bbolt holds an exclusive file lock for as long as the store is open.
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("metadata store %s is locked by another process (is the server running?): %w", path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(trackerBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create metadata bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Load() (map[string]time.Time, error) {
	entries := make(map[string]time.Time)

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(trackerBucket).Get(entriesKey)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &entries)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}

	return entries, nil
}

func (s *BoltStore) Save(entries map[string]time.Time) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(trackerBucket).Put(entriesKey, data)
	})
	if err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}

func (s *BoltStore) Path() string {
	return s.db.Path()
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
