package events

import (
	"time"

	"github.com/labfleet/labfleet/pkg/domain"
	"github.com/labfleet/labfleet/pkg/metrics"
	"github.com/labfleet/labfleet/pkg/types"
)

// Wire envelope types. Most domain events map one-to-one; the two cloud
// metric slots share worker.cloud_metrics_updated on the wire.
const (
	TypeWorkerCreated             = "worker.created"
	TypeWorkerImported            = "worker.imported"
	TypeWorkerProvisioned         = "worker.provisioned"
	TypeWorkerProvisionFailed     = "worker.provision_failed"
	TypeWorkerStatusChanged       = "worker.status_changed"
	TypeWorkerTerminated          = "worker.terminated"
	TypeWorkerCloudMetricsUpdated = "worker.cloud_metrics_updated"
	TypeWorkerServiceUpdated      = "worker.service_updated"
	TypeWorkerTagsUpdated         = "worker.tags_updated"
	TypeWorkerIdleToggled         = "worker.idle_detection.toggled"
	TypeWorkerPaused              = "worker.paused"
	TypeWorkerResumed             = "worker.resumed"
	TypeWorkerActivity            = "worker.activity"
	TypeWorkerSnapshot            = "worker.snapshot"
	TypeWorkerSyncFailed          = "worker.sync.failed"
	TypeLabCreated                = "lab.created"
	TypeLabUpdated                = "lab.updated"
	TypeLabDeleted                = "lab.deleted"
)

const source = "labfleet"

// Relay translates domain events into wire envelopes on the broker. It is
// the fan-out side of the command pipeline: handlers publish through it
// after persistence succeeds, in emission order.
type Relay struct {
	broker *Broker
}

// NewRelay creates a relay bound to a broker
func NewRelay(broker *Broker) *Relay {
	return &Relay{broker: broker}
}

func (r *Relay) publish(e *Envelope) {
	metrics.EventsPublishedTotal.Inc()
	r.broker.Publish(e)
}

// PublishWorkerEvents converts each domain event into its envelope, in order
func (r *Relay) PublishWorkerEvents(workerID string, events []domain.Event) {
	for _, e := range events {
		r.publish(r.envelopeFor(workerID, e))
	}
}

// PublishSnapshot emits the full post-mutation projection so late-joining
// subscribers resync without a separate fetch
func (r *Relay) PublishSnapshot(w *types.Worker) {
	r.publish(NewEnvelope(TypeWorkerSnapshot, source, time.Now(), w))
}

// PublishSyncFailed surfaces a recoverable background failure to subscribers
func (r *Relay) PublishSyncFailed(workerID, syncKind, message string) {
	r.publish(NewEnvelope(TypeWorkerSyncFailed, source, time.Now(), map[string]string{
		"worker_id": workerID,
		"sync":      syncKind,
		"message":   message,
	}))
}

// PublishLabEvent emits a lab record mutation
func (r *Relay) PublishLabEvent(e domain.LabEvent) {
	var envType string
	switch e.Kind {
	case domain.EventLabCreated:
		envType = TypeLabCreated
	case domain.EventLabUpdated:
		envType = TypeLabUpdated
	case domain.EventLabDeleted:
		envType = TypeLabDeleted
	default:
		return
	}
	r.publish(NewEnvelope(envType, source, e.At, map[string]interface{}{
		"worker_id": e.WorkerID,
		"lab_id":    e.Lab.LabID,
		"lab":       e.Lab,
	}))
}

func (r *Relay) envelopeFor(workerID string, e domain.Event) *Envelope {
	base := map[string]interface{}{"worker_id": workerID}

	switch ev := e.(type) {
	case domain.WorkerCreated:
		return NewEnvelope(TypeWorkerCreated, source, ev.At, ev.Worker)
	case domain.WorkerImported:
		return NewEnvelope(TypeWorkerImported, source, ev.At, ev.Worker)
	case domain.WorkerProvisioned:
		base["cloud_instance_id"] = ev.InstanceID
		return NewEnvelope(TypeWorkerProvisioned, source, ev.At, base)
	case domain.WorkerProvisionFailed:
		base["reason"] = ev.Reason
		return NewEnvelope(TypeWorkerProvisionFailed, source, ev.At, base)
	case domain.WorkerStatusChanged:
		base["from"] = ev.From
		base["to"] = ev.To
		base["reason"] = ev.Reason
		return NewEnvelope(TypeWorkerStatusChanged, source, ev.At, base)
	case domain.WorkerTerminated:
		return NewEnvelope(TypeWorkerTerminated, source, ev.At, base)
	case domain.WorkerCloudHealthUpdated:
		base["instance_state"] = ev.Health.InstanceState
		base["system_status"] = ev.Health.SystemStatus
		return NewEnvelope(TypeWorkerCloudMetricsUpdated, source, ev.Health.LastCheckedAt, base)
	case domain.WorkerCloudUtilizationUpdated:
		base["cpu_percent"] = ev.Utilization.CPUPercent
		base["memory_percent"] = ev.Utilization.MemoryPercent
		return NewEnvelope(TypeWorkerCloudMetricsUpdated, source, ev.Utilization.LastCollectedAt, base)
	case domain.WorkerServiceUpdated:
		base["status"] = ev.State.Status
		base["version"] = ev.State.Version
		base["labs_count"] = ev.State.LabsCount
		return NewEnvelope(TypeWorkerServiceUpdated, source, ev.State.LastSyncedAt, base)
	case domain.WorkerTagsUpdated:
		base["tags"] = ev.Tags
		return NewEnvelope(TypeWorkerTagsUpdated, source, ev.At, base)
	case domain.WorkerIdleDetectionToggled:
		base["enabled"] = ev.Enabled
		return NewEnvelope(TypeWorkerIdleToggled, source, ev.At, base)
	case domain.WorkerAutoPaused:
		base["idle_since"] = ev.IdleSince
		return NewEnvelope(TypeWorkerPaused, source, ev.At, base)
	case domain.WorkerResumed:
		return NewEnvelope(TypeWorkerResumed, source, ev.At, base)
	case domain.WorkerActivityObserved:
		return NewEnvelope(TypeWorkerActivity, source, ev.At, base)
	default:
		base["event"] = string(e.Type())
		return NewEnvelope(string(e.Type()), source, e.OccurredAt(), base)
	}
}
