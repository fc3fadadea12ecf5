package scheduler

import (
	"time"

	"github.com/labfleet/labfleet/pkg/command"
)

// Throttle kinds shared with the manual refresh route
const (
	ThrottleRefresh = "refresh"
	ThrottleLabs    = "labs"
)

// JobsConfig carries the intervals and fan-out bounds of the standard jobs
type JobsConfig struct {
	MetricsInterval    time.Duration
	MetricsConcurrency int64

	LabsInterval    time.Duration
	LabsConcurrency int64

	IdleInterval    time.Duration
	IdleConcurrency int64

	AutoImportEnabled   bool
	AutoImportInterval  time.Duration
	AutoImportRegion    string
	AutoImportImageName string
}

// DefaultJobsConfig returns the stock intervals
func DefaultJobsConfig() JobsConfig {
	return JobsConfig{
		MetricsInterval:    5 * time.Minute,
		MetricsConcurrency: 10,
		LabsInterval:       30 * time.Minute,
		LabsConcurrency:    5,
		IdleInterval:       10 * time.Minute,
		IdleConcurrency:    10,
		AutoImportInterval: time.Hour,
	}
}

// RegisterStandardJobs wires the recurrent reconciliation jobs:
// cloud/service metrics collection, labs refresh, idle detection, and the
// opt-in periodic auto import.
func RegisterStandardJobs(s *Scheduler, cfg JobsConfig) {
	s.Register(Job{
		Name:         "worker_metrics_collection",
		Interval:     cfg.MetricsInterval,
		Concurrency:  cfg.MetricsConcurrency,
		ThrottleKind: ThrottleRefresh,
		Commands: func(workerID string) []command.Command {
			return []command.Command{
				&command.SyncWorkerCloudMetrics{WorkerID: workerID},
				&command.SyncWorkerServiceData{WorkerID: workerID},
			}
		},
	})
	s.Register(Job{
		Name:         "labs_refresh",
		Interval:     cfg.LabsInterval,
		Concurrency:  cfg.LabsConcurrency,
		ThrottleKind: ThrottleLabs,
		Commands: func(workerID string) []command.Command {
			return []command.Command{&command.RefreshWorkerLabs{WorkerID: workerID}}
		},
	})
	s.Register(Job{
		Name:        "activity_detection",
		Interval:    cfg.IdleInterval,
		Concurrency: cfg.IdleConcurrency,
		Commands: func(workerID string) []command.Command {
			return []command.Command{&command.DetectWorkerIdle{WorkerID: workerID}}
		},
	})
	if cfg.AutoImportEnabled {
		s.Register(Job{
			Name:     "auto_import_workers",
			Interval: cfg.AutoImportInterval,
			FleetCommands: func() []command.Command {
				return []command.Command{&command.BulkImportWorkers{
					Region:    cfg.AutoImportRegion,
					ImageName: cfg.AutoImportImageName,
					CreatedBy: "auto-import",
				}}
			},
		})
	}
}
