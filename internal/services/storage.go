package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	. "eye-of-horus/internal/common"
	. "eye-of-horus/internal/interfaces"
	"eye-of-horus/internal/models"

	bolt "go.etcd.io/bbolt"
)

const (
	runsBucket     = "runs"
	tokensBucket   = "tokens"
	metadataBucket = "metadata"
	lastPruneKey   = "last_prune"
	runKeyLayout   = "20060102T150405.000000000Z"
)

type storage struct {
	db     *bolt.DB
	config *StorageConfig
}

func NewStorage(config *StorageConfig) (Storage, error) {
	dbDir := filepath.Dir(config.DatabasePath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(config.DatabasePath, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{runsBucket, tokensBucket, metadataBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &storage{
		db:     db,
		config: config,
	}, nil
}

func (s *storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// runKey sorts chronologically; the id suffix keeps concurrent runs apart.
func runKey(run *models.RunRecord) []byte {
	return []byte(run.StartedAt.UTC().Format(runKeyLayout) + ":" + run.ID)
}

func (s *storage) SaveRun(run *models.RunRecord) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run record requires an id")
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.ID, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(runsBucket)).Put(runKey(run), data); err != nil {
			return fmt.Errorf("failed to save run %s: %w", run.ID, err)
		}
		return nil
	})
}

// ListRuns returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *storage) ListRuns(limit int) ([]*models.RunRecord, error) {
	runs := make([]*models.RunRecord, 0)

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			var run models.RunRecord
			if err := json.Unmarshal(v, &run); err != nil {
				continue
			}
			runs = append(runs, &run)
		}
		return nil
	})

	return runs, err
}

// PruneRuns deletes runs started before the cutoff.
func (s *storage) PruneRuns(before time.Time) (int, error) {
	cutoff := []byte(before.UTC().Format(runKeyLayout))
	deleted := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(runsBucket))

		var stale [][]byte
		c := bucket.Cursor()
		for k, _ := c.First(); k != nil && string(k) < string(cutoff); k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			deleted++
		}

		now, _ := time.Now().MarshalBinary()
		return tx.Bucket([]byte(metadataBucket)).Put([]byte(lastPruneKey), now)
	})

	return deleted, err
}

func (s *storage) SaveToken(name string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(tokensBucket)).Put([]byte(name), data)
	})
}

// LoadToken returns nil without error when no token is stored.
func (s *storage) LoadToken(name string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(tokensBucket)).Get([]byte(name)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	return data, err
}

func (s *storage) Ping() error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(runsBucket)) == nil {
			return fmt.Errorf("runs bucket missing")
		}
		return nil
	})
}
