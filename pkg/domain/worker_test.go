package domain

import (
	"testing"
	"time"

	"github.com/labfleet/labfleet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    types.WorkerStatus
		to      types.WorkerStatus
		allowed bool
	}{
		{"pending to provisioned", types.WorkerStatusPending, types.WorkerStatusProvisioned, true},
		{"pending to failed", types.WorkerStatusPending, types.WorkerStatusFailed, true},
		{"running to stopping", types.WorkerStatusRunning, types.WorkerStatusStopping, true},
		{"stopping to stopped", types.WorkerStatusStopping, types.WorkerStatusStopped, true},
		{"stopped to starting", types.WorkerStatusStopped, types.WorkerStatusStarting, true},
		{"starting to running", types.WorkerStatusStarting, types.WorkerStatusRunning, true},
		{"running to terminating", types.WorkerStatusRunning, types.WorkerStatusTerminating, true},
		{"terminating to terminated", types.WorkerStatusTerminating, types.WorkerStatusTerminated, true},
		{"running to stopped skips stopping", types.WorkerStatusRunning, types.WorkerStatusStopped, false},
		{"terminated is terminal", types.WorkerStatusTerminated, types.WorkerStatusRunning, false},
		{"terminated cannot restart", types.WorkerStatusTerminated, types.WorkerStatusStarting, false},
		{"stopped to running skips starting", types.WorkerStatusStopped, types.WorkerStatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestNewWorker(t *testing.T) {
	now := time.Now()
	a := NewWorker(NewWorkerParams{
		Name:         "w1",
		Region:       "us-east-1",
		InstanceType: "c5.2xlarge",
		ImageID:      "ami-123",
		CreatedBy:    "alice",
	}, now)

	assert.NotEmpty(t, a.Worker.ID)
	assert.Equal(t, types.WorkerStatusPending, a.Worker.Status)
	assert.Equal(t, types.ServiceStatusUnknown, a.Worker.Service.Status)
	assert.Equal(t, "w1", a.Worker.Name)

	events := a.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventWorkerCreated, events[0].Type())

	// buffer drains
	assert.Empty(t, a.Events())
}

func TestStatusFromCloudState(t *testing.T) {
	tests := []struct {
		state   string
		status  types.WorkerStatus
		wantErr bool
	}{
		{"pending", types.WorkerStatusStarting, false},
		{"running", types.WorkerStatusRunning, false},
		{"stopping", types.WorkerStatusStopping, false},
		{"stopped", types.WorkerStatusStopped, false},
		{"shutting-down", types.WorkerStatusTerminating, false},
		{"terminated", "", true},
		{"rebooting", types.WorkerStatusImported, false},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			status, err := StatusFromCloudState(tt.state)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestImportWorkerDerivesNameFromTags(t *testing.T) {
	facts := types.VMFacts{
		InstanceID: "i-1",
		State:      "running",
		Tags:       map[string]string{"Name": "lab-host-7"},
	}
	a, err := ImportWorker("", "eu-west-1", "bob", facts, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "lab-host-7", a.Worker.Name)
	assert.Equal(t, "i-1", a.Worker.CloudInstanceID)
	assert.Equal(t, types.WorkerStatusRunning, a.Worker.Status)
}

func TestProvisioningSagaEvents(t *testing.T) {
	now := time.Now()
	a := NewWorker(NewWorkerParams{Name: "w1", Region: "r1"}, now)

	require.NoError(t, a.Provisioned("i-1", now.Add(time.Second)))
	assert.Equal(t, "i-1", a.Worker.CloudInstanceID)
	assert.Equal(t, types.WorkerStatusProvisioned, a.Worker.Status)

	events := a.Events()
	require.Len(t, events, 2)
	assert.Equal(t, EventWorkerCreated, events[0].Type())
	assert.Equal(t, EventWorkerProvisioned, events[1].Type())

	// instance id is immutable once assigned
	err := a.Provisioned("i-other", now.Add(2*time.Second))
	assert.Error(t, err)
	assert.Equal(t, "i-1", a.Worker.CloudInstanceID)
}

func TestProvisionFailed(t *testing.T) {
	a := NewWorker(NewWorkerParams{Name: "w1", Region: "r1"}, time.Now())
	require.NoError(t, a.ProvisionFailed("capacity", time.Now()))
	assert.Equal(t, types.WorkerStatusFailed, a.Worker.Status)
}

func TestMarkStatusRejectsInvalidWithoutMutation(t *testing.T) {
	a := Load(&types.Worker{ID: "w", Status: types.WorkerStatusRunning})
	err := a.MarkStatus(types.WorkerStatusStopped, "observe", time.Now())
	require.Error(t, err)

	var inv ErrInvalidTransition
	assert.ErrorAs(t, err, &inv)
	assert.Equal(t, types.WorkerStatusRunning, a.Worker.Status)
	assert.Empty(t, a.Events())
}

func TestMetricSlotsAreIndependent(t *testing.T) {
	now := time.Now()
	a := Load(&types.Worker{ID: "w", Status: types.WorkerStatusRunning})

	a.RecordCloudHealth(types.CloudHealth{InstanceState: "running", LastCheckedAt: now})
	a.RecordServiceState(types.ServiceState{Status: types.ServiceStatusAvailable, LastSyncedAt: now.Add(-time.Hour)})

	// a fresh cloud update never touches the service slot
	a.RecordCloudUtilization(types.CloudUtilization{CPUPercent: 42, LastCollectedAt: now})
	assert.Equal(t, now, a.Worker.CloudHealth.LastCheckedAt)
	assert.Equal(t, 42.0, a.Worker.CloudUtilization.CPUPercent)
	assert.Equal(t, now.Add(-time.Hour), a.Worker.Service.LastSyncedAt)
}

func TestMetricWatermarksNeverRegress(t *testing.T) {
	now := time.Now()
	a := Load(&types.Worker{
		ID:               "w",
		Status:           types.WorkerStatusRunning,
		CloudHealth:      types.CloudHealth{LastCheckedAt: now},
		CloudUtilization: types.CloudUtilization{LastCollectedAt: now},
		Service:          types.ServiceState{LastSyncedAt: now},
	})

	stale := now.Add(-time.Minute)
	a.RecordCloudHealth(types.CloudHealth{InstanceState: "stopped", LastCheckedAt: stale})
	a.RecordCloudUtilization(types.CloudUtilization{CPUPercent: 99, LastCollectedAt: stale})
	a.RecordServiceState(types.ServiceState{Status: types.ServiceStatusError, LastSyncedAt: stale})

	assert.Equal(t, now, a.Worker.CloudHealth.LastCheckedAt)
	assert.Equal(t, now, a.Worker.CloudUtilization.LastCollectedAt)
	assert.Equal(t, now, a.Worker.Service.LastSyncedAt)
	assert.Empty(t, a.Events())
}

func TestAutoPauseAndResume(t *testing.T) {
	now := time.Now()
	a := Load(&types.Worker{ID: "w", Status: types.WorkerStatusRunning, IdleDetectionEnabled: true})

	idleSince := now.Add(-2 * time.Hour)
	require.NoError(t, a.AutoPause(idleSince, now))
	assert.True(t, a.Worker.PausedBySystem)
	assert.Equal(t, idleSince, a.Worker.IdleSince)

	// double pause is refused
	assert.Error(t, a.AutoPause(idleSince, now))

	a.Resume(now.Add(time.Minute))
	assert.False(t, a.Worker.PausedBySystem)
	assert.True(t, a.Worker.IdleSince.IsZero())
	assert.Equal(t, now.Add(time.Minute), a.Worker.LastActivityAt)
}

func TestSetIdleDetectionIsIdempotent(t *testing.T) {
	a := Load(&types.Worker{ID: "w", Status: types.WorkerStatusRunning})
	assert.True(t, a.SetIdleDetection(true, time.Now()))
	assert.False(t, a.SetIdleDetection(true, time.Now()))
	assert.Len(t, a.Events(), 1)
}

func TestReplayReproducesState(t *testing.T) {
	now := time.Now()
	a := NewWorker(NewWorkerParams{Name: "w1", Region: "r1", InstanceType: "t3.large", ImageID: "ami-1"}, now)
	require.NoError(t, a.Provisioned("i-9", now))
	require.NoError(t, a.MarkStatus(types.WorkerStatusRunning, "observed running", now))
	a.RecordCloudHealth(types.CloudHealth{InstanceState: "running", SystemStatus: "ok", LastCheckedAt: now})
	a.RecordCloudUtilization(types.CloudUtilization{CPUPercent: 17.5, MemoryPercent: 40, LastCollectedAt: now})
	a.RecordServiceState(types.ServiceState{Status: types.ServiceStatusAvailable, Version: "2.7", Ready: true, LabsCount: 3, LastSyncedAt: now})
	a.SetTags(map[string]string{"env": "prod"}, now)
	assert.True(t, a.SetIdleDetection(true, now))
	a.ObserveActivity(now.Add(time.Second))

	replayed := Replay(a.Events())
	assert.Equal(t, a.Worker, replayed)
}
