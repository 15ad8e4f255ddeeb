package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/grovehq/grove/pkg/types"
)

var (
	// Bucket names
	bucketGardens = []byte("gardens")
	bucketSystems = []byte("systems")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "grove.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketGardens, bucketSystems} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Garden operations

func (s *BoltStore) CreateGarden(garden *types.Garden) error {
	return s.putGarden(garden)
}

func (s *BoltStore) UpdateGarden(garden *types.Garden) error {
	return s.putGarden(garden) // Same as create (upsert)
}

func (s *BoltStore) putGarden(garden *types.Garden) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGardens)
		data, err := json.Marshal(garden)
		if err != nil {
			return err
		}
		return b.Put([]byte(garden.Name), data)
	})
}

func (s *BoltStore) GetGarden(name string) (*types.Garden, error) {
	var garden types.Garden
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGardens)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("garden %s: %w", name, ErrNotFound)
		}
		return json.Unmarshal(data, &garden)
	})
	if err != nil {
		return nil, err
	}
	return &garden, nil
}

func (s *BoltStore) GetGardenByID(id string) (*types.Garden, error) {
	var found *types.Garden
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGardens)
		return b.ForEach(func(k, v []byte) error {
			var garden types.Garden
			if err := json.Unmarshal(v, &garden); err != nil {
				return err
			}
			if garden.ID == id {
				found = &garden
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("garden id %s: %w", id, ErrNotFound)
	}
	return found, nil
}

func (s *BoltStore) ListGardens() ([]*types.Garden, error) {
	var gardens []*types.Garden
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGardens)
		return b.ForEach(func(k, v []byte) error {
			var garden types.Garden
			if err := json.Unmarshal(v, &garden); err != nil {
				return err
			}
			gardens = append(gardens, &garden)
			return nil
		})
	})
	return gardens, err
}

// MutateGarden performs a read-modify-write on one garden record inside
// a single bolt write transaction. bolt allows one writer at a time, so
// simultaneous mutations of the same record are serialized here rather
// than in the callers.
func (s *BoltStore) MutateGarden(name string, fn func(*types.Garden) error) (*types.Garden, error) {
	var garden types.Garden
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGardens)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("garden %s: %w", name, ErrNotFound)
		}
		if err := json.Unmarshal(data, &garden); err != nil {
			return err
		}
		if err := fn(&garden); err != nil {
			return err
		}
		updated, err := json.Marshal(&garden)
		if err != nil {
			return err
		}
		return b.Put([]byte(name), updated)
	})
	if err != nil {
		return nil, err
	}
	return &garden, nil
}

func (s *BoltStore) DeleteGarden(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGardens)
		return b.Delete([]byte(name))
	})
}

// System operations

func (s *BoltStore) UpsertSystem(system *types.SystemRef) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSystems)
		data, err := json.Marshal(system)
		if err != nil {
			return err
		}
		return b.Put([]byte(system.ID), data)
	})
}

func (s *BoltStore) GetSystem(id string) (*types.SystemRef, error) {
	var system types.SystemRef
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSystems)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("system %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &system)
	})
	if err != nil {
		return nil, err
	}
	return &system, nil
}

func (s *BoltStore) ListSystems(filter SystemFilter) ([]*types.SystemRef, error) {
	var systems []*types.SystemRef
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSystems)
		return b.ForEach(func(k, v []byte) error {
			var system types.SystemRef
			if err := json.Unmarshal(v, &system); err != nil {
				return err
			}
			if filter.Garden != "" && system.Garden != filter.Garden {
				return nil
			}
			if filter.Namespace != "" && system.Namespace != filter.Namespace {
				return nil
			}
			if filter.Local != nil && system.Local != *filter.Local {
				return nil
			}
			systems = append(systems, &system)
			return nil
		})
	})
	return systems, err
}

func (s *BoltStore) DeleteSystem(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSystems)
		return b.Delete([]byte(id))
	})
}
