package domain

import (
	"time"

	"github.com/labfleet/labfleet/pkg/types"
)

// EventType identifies a domain event kind
type EventType string

const (
	EventWorkerCreated                 EventType = "worker.created"
	EventWorkerImported                EventType = "worker.imported"
	EventWorkerProvisioned             EventType = "worker.provisioned"
	EventWorkerProvisionFailed         EventType = "worker.provision_failed"
	EventWorkerStatusChanged           EventType = "worker.status_changed"
	EventWorkerTerminated              EventType = "worker.terminated"
	EventWorkerCloudHealthUpdated      EventType = "worker.cloud_health_updated"
	EventWorkerCloudUtilizationUpdated EventType = "worker.cloud_utilization_updated"
	EventWorkerServiceUpdated          EventType = "worker.service_updated"
	EventWorkerTagsUpdated             EventType = "worker.tags_updated"
	EventWorkerIdleDetectionToggled    EventType = "worker.idle_detection_toggled"
	EventWorkerAutoPaused              EventType = "worker.auto_paused"
	EventWorkerResumed                 EventType = "worker.resumed"
	EventWorkerActivityObserved        EventType = "worker.activity_observed"
)

// Event is a recorded mutation of the Worker aggregate. Events are applied
// by the pure reducer in apply(); replaying a worker's event sequence over a
// zero Worker reproduces its state.
type Event interface {
	Type() EventType
	OccurredAt() time.Time
}

// WorkerCreated carries the full initial record of a provisioning-path worker
type WorkerCreated struct {
	Worker types.Worker
	At     time.Time
}

func (e WorkerCreated) Type() EventType       { return EventWorkerCreated }
func (e WorkerCreated) OccurredAt() time.Time { return e.At }

// WorkerImported carries the full initial record of an imported worker
type WorkerImported struct {
	Worker types.Worker
	At     time.Time
}

func (e WorkerImported) Type() EventType       { return EventWorkerImported }
func (e WorkerImported) OccurredAt() time.Time { return e.At }

// WorkerProvisioned records the cloud instance assignment after run_instance
type WorkerProvisioned struct {
	InstanceID string
	At         time.Time
}

func (e WorkerProvisioned) Type() EventType       { return EventWorkerProvisioned }
func (e WorkerProvisioned) OccurredAt() time.Time { return e.At }

// WorkerProvisionFailed records a failed provisioning saga
type WorkerProvisionFailed struct {
	Reason string
	At     time.Time
}

func (e WorkerProvisionFailed) Type() EventType       { return EventWorkerProvisionFailed }
func (e WorkerProvisionFailed) OccurredAt() time.Time { return e.At }

// WorkerStatusChanged records a lifecycle transition
type WorkerStatusChanged struct {
	From   types.WorkerStatus
	To     types.WorkerStatus
	Reason string
	At     time.Time
}

func (e WorkerStatusChanged) Type() EventType       { return EventWorkerStatusChanged }
func (e WorkerStatusChanged) OccurredAt() time.Time { return e.At }

// WorkerTerminated records the cloud-confirmed end of a worker
type WorkerTerminated struct {
	At time.Time
}

func (e WorkerTerminated) Type() EventType       { return EventWorkerTerminated }
func (e WorkerTerminated) OccurredAt() time.Time { return e.At }

// WorkerCloudHealthUpdated refreshes the cloud-health metric slot
type WorkerCloudHealthUpdated struct {
	Health types.CloudHealth
}

func (e WorkerCloudHealthUpdated) Type() EventType       { return EventWorkerCloudHealthUpdated }
func (e WorkerCloudHealthUpdated) OccurredAt() time.Time { return e.Health.LastCheckedAt }

// WorkerCloudUtilizationUpdated refreshes the cloud-utilization metric slot
type WorkerCloudUtilizationUpdated struct {
	Utilization types.CloudUtilization
}

func (e WorkerCloudUtilizationUpdated) Type() EventType { return EventWorkerCloudUtilizationUpdated }
func (e WorkerCloudUtilizationUpdated) OccurredAt() time.Time {
	return e.Utilization.LastCollectedAt
}

// WorkerServiceUpdated refreshes the Service metric slot
type WorkerServiceUpdated struct {
	State types.ServiceState
}

func (e WorkerServiceUpdated) Type() EventType       { return EventWorkerServiceUpdated }
func (e WorkerServiceUpdated) OccurredAt() time.Time { return e.State.LastSyncedAt }

// WorkerTagsUpdated replaces the cloud tags on the worker
type WorkerTagsUpdated struct {
	Tags map[string]string
	At   time.Time
}

func (e WorkerTagsUpdated) Type() EventType       { return EventWorkerTagsUpdated }
func (e WorkerTagsUpdated) OccurredAt() time.Time { return e.At }

// WorkerIdleDetectionToggled flips the auto-pause opt-in flag
type WorkerIdleDetectionToggled struct {
	Enabled bool
	At      time.Time
}

func (e WorkerIdleDetectionToggled) Type() EventType       { return EventWorkerIdleDetectionToggled }
func (e WorkerIdleDetectionToggled) OccurredAt() time.Time { return e.At }

// WorkerAutoPaused marks a worker paused by the idle detector
type WorkerAutoPaused struct {
	IdleSince time.Time
	At        time.Time
}

func (e WorkerAutoPaused) Type() EventType       { return EventWorkerAutoPaused }
func (e WorkerAutoPaused) OccurredAt() time.Time { return e.At }

// WorkerResumed clears the system-paused flag after a manual start
type WorkerResumed struct {
	At time.Time
}

func (e WorkerResumed) Type() EventType       { return EventWorkerResumed }
func (e WorkerResumed) OccurredAt() time.Time { return e.At }

// WorkerActivityObserved advances the last-activity watermark
type WorkerActivityObserved struct {
	At time.Time
}

func (e WorkerActivityObserved) Type() EventType       { return EventWorkerActivityObserved }
func (e WorkerActivityObserved) OccurredAt() time.Time { return e.At }

// LabEvent mirrors lab record mutations for the fan-out. Lab records are not
// event-sourced; these exist so subscribers see lab changes on the stream.
type LabEvent struct {
	Kind     EventType
	WorkerID string
	Lab      types.LabRecord
	At       time.Time
}

const (
	EventLabCreated EventType = "lab.created"
	EventLabUpdated EventType = "lab.updated"
	EventLabDeleted EventType = "lab.deleted"
)

func (e LabEvent) Type() EventType       { return e.Kind }
func (e LabEvent) OccurredAt() time.Time { return e.At }
