package storage

import (
	"errors"

	"github.com/labfleet/labfleet/pkg/types"
)

// ErrNotFound is returned when a requested document does not exist
var ErrNotFound = errors.New("not found")

// Store defines the interface for control-plane state storage.
// Implemented by the BoltDB-backed store; a single process is the only
// writer, so no distributed locking is required.
type Store interface {
	// Workers
	SaveWorker(worker *types.Worker) error
	GetWorker(id string) (*types.Worker, error)
	GetWorkerByInstanceID(instanceID string) (*types.Worker, error)
	ListWorkers() ([]*types.Worker, error)
	DeleteWorker(id string) error

	// Lab records
	SaveLabRecord(rec *types.LabRecord) error
	GetLabRecord(workerID, labID string) (*types.LabRecord, error)
	ListLabRecordsByWorker(workerID string) ([]*types.LabRecord, error)
	ListLabRecords() ([]*types.LabRecord, error)
	DeleteLabRecord(workerID, labID string) error
	DeleteLabRecordsByWorker(workerID string) error

	// Utility
	Close() error
}
