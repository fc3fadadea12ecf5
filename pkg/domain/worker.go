package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/labfleet/labfleet/pkg/types"
)

// ErrInvalidTransition is returned when a lifecycle change is not an edge of
// the worker status graph. The aggregate is left unmodified.
type ErrInvalidTransition struct {
	From types.WorkerStatus
	To   types.WorkerStatus
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid worker status transition: %s -> %s", e.From, e.To)
}

// transitions is the allowed worker status graph
var transitions = map[types.WorkerStatus][]types.WorkerStatus{
	types.WorkerStatusPending:     {types.WorkerStatusProvisioned, types.WorkerStatusFailed, types.WorkerStatusTerminating},
	types.WorkerStatusProvisioned: {types.WorkerStatusRunning, types.WorkerStatusStarting, types.WorkerStatusStopping, types.WorkerStatusFailed, types.WorkerStatusTerminating},
	types.WorkerStatusRunning:     {types.WorkerStatusStopping, types.WorkerStatusTerminating},
	types.WorkerStatusStopping:    {types.WorkerStatusStopped, types.WorkerStatusTerminating},
	types.WorkerStatusStopped:     {types.WorkerStatusStarting, types.WorkerStatusTerminating},
	types.WorkerStatusStarting:    {types.WorkerStatusRunning, types.WorkerStatusTerminating},
	types.WorkerStatusImported:    {types.WorkerStatusRunning, types.WorkerStatusStarting, types.WorkerStatusStopping, types.WorkerStatusStopped, types.WorkerStatusTerminating},
	types.WorkerStatusFailed:      {types.WorkerStatusTerminating},
	types.WorkerStatusTerminating: {types.WorkerStatusTerminated},
	types.WorkerStatusTerminated:  {},
}

// CanTransition reports whether from -> to is an edge of the status graph
func CanTransition(from, to types.WorkerStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Aggregate is the write-path wrapper around a Worker. Every mutation builds
// a domain event, applies it through the pure reducer, and buffers it so the
// caller can publish after persistence succeeds.
type Aggregate struct {
	Worker  *types.Worker
	pending []Event
}

// Load wraps an existing worker for mutation
func Load(w *types.Worker) *Aggregate {
	return &Aggregate{Worker: w}
}

// NewWorkerParams holds the inputs of the provisioning-path factory
type NewWorkerParams struct {
	Name         string
	Region       string
	InstanceType string
	ImageID      string
	ImageName    string
	CreatedBy    string
	Tags         map[string]string
}

// NewWorker creates a pending worker for the provisioning saga
func NewWorker(p NewWorkerParams, now time.Time) *Aggregate {
	w := types.Worker{
		ID:           uuid.New().String(),
		Name:         p.Name,
		Region:       p.Region,
		InstanceType: p.InstanceType,
		ImageID:      p.ImageID,
		ImageName:    p.ImageName,
		CreatedBy:    p.CreatedBy,
		Tags:         p.Tags,
		CreatedAt:    now,
		Status:       types.WorkerStatusPending,
		Service:      types.ServiceState{Status: types.ServiceStatusUnknown},
	}
	a := &Aggregate{Worker: &types.Worker{}}
	a.raise(WorkerCreated{Worker: w, At: now})
	return a
}

// StatusFromCloudState maps a cloud instance state to a worker status for
// import. Terminated instances cannot be imported.
func StatusFromCloudState(state string) (types.WorkerStatus, error) {
	switch state {
	case "pending":
		return types.WorkerStatusStarting, nil
	case "running":
		return types.WorkerStatusRunning, nil
	case "stopping":
		return types.WorkerStatusStopping, nil
	case "stopped":
		return types.WorkerStatusStopped, nil
	case "shutting-down":
		return types.WorkerStatusTerminating, nil
	case "terminated":
		return "", fmt.Errorf("instance is terminated and cannot be imported")
	default:
		return types.WorkerStatusImported, nil
	}
}

// ImportWorker builds an aggregate from an existing cloud instance
func ImportWorker(name, region, createdBy string, facts types.VMFacts, now time.Time) (*Aggregate, error) {
	status, err := StatusFromCloudState(facts.State)
	if err != nil {
		return nil, err
	}
	if name == "" {
		if n, ok := facts.Tags["Name"]; ok && n != "" {
			name = n
		} else {
			name = facts.InstanceID
		}
	}
	w := types.Worker{
		ID:              uuid.New().String(),
		Name:            name,
		Region:          region,
		CreatedBy:       createdBy,
		CreatedAt:       now,
		CloudInstanceID: facts.InstanceID,
		InstanceType:    facts.InstanceType,
		ImageID:         facts.ImageID,
		ImageName:       facts.ImageName,
		PublicAddress:   facts.PublicAddress,
		PrivateAddress:  facts.PrivateAddress,
		Subnet:          facts.Subnet,
		SecurityGroups:  facts.SecurityGroups,
		Tags:            facts.Tags,
		Status:          status,
		Service:         types.ServiceState{Status: types.ServiceStatusUnknown},
	}
	a := &Aggregate{Worker: &types.Worker{}}
	a.raise(WorkerImported{Worker: w, At: now})
	return a, nil
}

// Events drains the pending event buffer
func (a *Aggregate) Events() []Event {
	evs := a.pending
	a.pending = nil
	return evs
}

func (a *Aggregate) raise(e Event) {
	apply(a.Worker, e)
	a.pending = append(a.pending, e)
}

// Provisioned records the cloud instance id and moves to provisioned
func (a *Aggregate) Provisioned(instanceID string, now time.Time) error {
	if a.Worker.CloudInstanceID != "" && a.Worker.CloudInstanceID != instanceID {
		return fmt.Errorf("cloud instance id already assigned: %s", a.Worker.CloudInstanceID)
	}
	if !CanTransition(a.Worker.Status, types.WorkerStatusProvisioned) {
		return ErrInvalidTransition{From: a.Worker.Status, To: types.WorkerStatusProvisioned}
	}
	a.raise(WorkerProvisioned{InstanceID: instanceID, At: now})
	return nil
}

// ProvisionFailed marks the saga failed
func (a *Aggregate) ProvisionFailed(reason string, now time.Time) error {
	if !CanTransition(a.Worker.Status, types.WorkerStatusFailed) {
		return ErrInvalidTransition{From: a.Worker.Status, To: types.WorkerStatusFailed}
	}
	a.raise(WorkerProvisionFailed{Reason: reason, At: now})
	return nil
}

// MarkStatus performs a lifecycle transition along the status graph
func (a *Aggregate) MarkStatus(to types.WorkerStatus, reason string, now time.Time) error {
	if a.Worker.Status == to {
		return nil
	}
	if !CanTransition(a.Worker.Status, to) {
		return ErrInvalidTransition{From: a.Worker.Status, To: to}
	}
	a.raise(WorkerStatusChanged{From: a.Worker.Status, To: to, Reason: reason, At: now})
	return nil
}

// Terminated records the cloud-confirmed disappearance of the instance
func (a *Aggregate) Terminated(now time.Time) error {
	if !CanTransition(a.Worker.Status, types.WorkerStatusTerminated) {
		return ErrInvalidTransition{From: a.Worker.Status, To: types.WorkerStatusTerminated}
	}
	a.raise(WorkerTerminated{At: now})
	return nil
}

// RecordCloudHealth updates the cloud-health slot. Stale observations (older
// than the slot's watermark) are dropped so last_checked_at never regresses.
func (a *Aggregate) RecordCloudHealth(h types.CloudHealth) {
	if h.LastCheckedAt.Before(a.Worker.CloudHealth.LastCheckedAt) {
		return
	}
	a.raise(WorkerCloudHealthUpdated{Health: h})
}

// RecordCloudUtilization updates the cloud-utilization slot
func (a *Aggregate) RecordCloudUtilization(u types.CloudUtilization) {
	if u.LastCollectedAt.Before(a.Worker.CloudUtilization.LastCollectedAt) {
		return
	}
	a.raise(WorkerCloudUtilizationUpdated{Utilization: u})
}

// RecordServiceState updates the Service slot
func (a *Aggregate) RecordServiceState(s types.ServiceState) {
	if s.LastSyncedAt.Before(a.Worker.Service.LastSyncedAt) {
		return
	}
	a.raise(WorkerServiceUpdated{State: s})
}

// SetTags replaces the worker's cloud tags
func (a *Aggregate) SetTags(tags map[string]string, now time.Time) {
	a.raise(WorkerTagsUpdated{Tags: tags, At: now})
}

// SetIdleDetection flips the auto-pause opt-in; no-op when unchanged
func (a *Aggregate) SetIdleDetection(enabled bool, now time.Time) bool {
	if a.Worker.IdleDetectionEnabled == enabled {
		return false
	}
	a.raise(WorkerIdleDetectionToggled{Enabled: enabled, At: now})
	return true
}

// AutoPause marks the worker paused by the idle detector
func (a *Aggregate) AutoPause(idleSince, now time.Time) error {
	if a.Worker.PausedBySystem {
		return fmt.Errorf("worker already paused by system")
	}
	a.raise(WorkerAutoPaused{IdleSince: idleSince, At: now})
	return nil
}

// Resume clears the system-paused flag after a manual start
func (a *Aggregate) Resume(now time.Time) {
	if !a.Worker.PausedBySystem {
		return
	}
	a.raise(WorkerResumed{At: now})
}

// ObserveActivity advances the last-activity watermark; stale or duplicate
// observations are dropped
func (a *Aggregate) ObserveActivity(at time.Time) {
	if !at.After(a.Worker.LastActivityAt) {
		return
	}
	a.raise(WorkerActivityObserved{At: at})
}

// apply is the pure reducer: it folds one event into the worker state and
// must stay free of validation, clocks, and I/O so replays are exact.
func apply(w *types.Worker, e Event) {
	switch ev := e.(type) {
	case WorkerCreated:
		*w = ev.Worker
	case WorkerImported:
		*w = ev.Worker
	case WorkerProvisioned:
		w.CloudInstanceID = ev.InstanceID
		w.Status = types.WorkerStatusProvisioned
	case WorkerProvisionFailed:
		w.Status = types.WorkerStatusFailed
	case WorkerStatusChanged:
		w.Status = ev.To
	case WorkerTerminated:
		w.Status = types.WorkerStatusTerminated
	case WorkerCloudHealthUpdated:
		w.CloudHealth = ev.Health
	case WorkerCloudUtilizationUpdated:
		w.CloudUtilization = ev.Utilization
	case WorkerServiceUpdated:
		w.Service = ev.State
	case WorkerTagsUpdated:
		w.Tags = ev.Tags
	case WorkerIdleDetectionToggled:
		w.IdleDetectionEnabled = ev.Enabled
		if !ev.Enabled {
			w.IdleSince = time.Time{}
		}
	case WorkerAutoPaused:
		w.PausedBySystem = true
		w.IdleSince = ev.IdleSince
	case WorkerResumed:
		w.PausedBySystem = false
		w.IdleSince = time.Time{}
		w.LastActivityAt = ev.At
	case WorkerActivityObserved:
		w.LastActivityAt = ev.At
	}
}

// Replay folds an event sequence over a zero worker
func Replay(events []Event) *types.Worker {
	w := &types.Worker{}
	for _, e := range events {
		apply(w, e)
	}
	return w
}
