package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/labfleet/labfleet/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketWorkers    = []byte("workers")
	bucketLabRecords = []byte("lab_records")
)

// labKey builds the composite key that makes (worker_id, lab_id) unique
func labKey(workerID, labID string) []byte {
	return []byte(workerID + "/" + labID)
}

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "labfleet.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketWorkers, bucketLabRecords} {
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

// Worker operations
func (s *BoltStore) SaveWorker(worker *types.Worker) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkers)
		data, err := json.Marshal(worker)
		if err != nil {
			return err
		}
		return b.Put([]byte(worker.ID), data)
	})
}

func (s *BoltStore) GetWorker(id string) (*types.Worker, error) {
	var worker types.Worker
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkers)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("worker %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &worker)
	})
	if err != nil {
		return nil, err
	}
	return &worker, nil
}

func (s *BoltStore) GetWorkerByInstanceID(instanceID string) (*types.Worker, error) {
	var found *types.Worker
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkers)
		return b.ForEach(func(k, v []byte) error {
			var worker types.Worker
			if err := json.Unmarshal(v, &worker); err != nil {
				return err
			}
			if worker.CloudInstanceID == instanceID {
				found = &worker
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("worker with instance %s: %w", instanceID, ErrNotFound)
	}
	return found, nil
}

func (s *BoltStore) ListWorkers() ([]*types.Worker, error) {
	var workers []*types.Worker
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkers)
		return b.ForEach(func(k, v []byte) error {
			var worker types.Worker
			if err := json.Unmarshal(v, &worker); err != nil {
				return err
			}
			workers = append(workers, &worker)
			return nil
		})
	})
	return workers, err
}

func (s *BoltStore) DeleteWorker(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketWorkers).Delete([]byte(id)); err != nil {
			return err
		}
		// cascade the worker's lab records
		b := tx.Bucket(bucketLabRecords)
		c := b.Cursor()
		prefix := []byte(id + "/")
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Lab record operations
func (s *BoltStore) SaveLabRecord(rec *types.LabRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLabRecords)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(labKey(rec.WorkerID, rec.LabID), data)
	})
}

func (s *BoltStore) GetLabRecord(workerID, labID string) (*types.LabRecord, error) {
	var rec types.LabRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLabRecords)
		data := b.Get(labKey(workerID, labID))
		if data == nil {
			return fmt.Errorf("lab %s on worker %s: %w", labID, workerID, ErrNotFound)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *BoltStore) ListLabRecordsByWorker(workerID string) ([]*types.LabRecord, error) {
	var recs []*types.LabRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLabRecords)
		c := b.Cursor()
		prefix := []byte(workerID + "/")
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec types.LabRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			recs = append(recs, &rec)
		}
		return nil
	})
	return recs, err
}

func (s *BoltStore) ListLabRecords() ([]*types.LabRecord, error) {
	var recs []*types.LabRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLabRecords)
		return b.ForEach(func(k, v []byte) error {
			var rec types.LabRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			recs = append(recs, &rec)
			return nil
		})
	})
	return recs, err
}

func (s *BoltStore) DeleteLabRecord(workerID, labID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLabRecords).Delete(labKey(workerID, labID))
	})
}

func (s *BoltStore) DeleteLabRecordsByWorker(workerID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLabRecords)
		c := b.Cursor()
		prefix := []byte(workerID + "/")
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
