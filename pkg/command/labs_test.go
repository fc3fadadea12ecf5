package command

import (
	"context"
	"testing"
	"time"

	"github.com/labfleet/labfleet/pkg/service"
	"github.com/labfleet/labfleet/pkg/storage"
	"github.com/labfleet/labfleet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func availableWorker(w *types.Worker) {
	w.Service = types.ServiceState{
		Status:       types.ServiceStatusAvailable,
		LastSyncedAt: time.Now().Add(-time.Minute),
	}
}

func TestRefreshWorkerLabsFullCycle(t *testing.T) {
	f := newFixture(t)
	w := f.seedWorker(t, types.WorkerStatusRunning, availableWorker)
	f.svc.labs = []types.ServiceLab{
		{ID: "lab-1", Title: "ospf basics", State: "STARTED", Owner: "alice", NodeCount: 4},
		{ID: "lab-2", Title: "bgp peering", State: "STOPPED", Owner: "bob", NodeCount: 8},
	}

	res := f.mediator.Dispatch(context.Background(), &RefreshWorkerLabs{WorkerID: w.ID})
	require.Equal(t, StatusOK, res.Status, res.Message)
	summary := res.Data.(LabsRefreshSummary)
	assert.Equal(t, 2, summary.Created)

	recs, err := f.store.ListLabRecordsByWorker(w.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, []string{"lab.created", "lab.created"}, f.pub.labEventTypes())

	stored, err := f.store.GetWorker(w.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Service.LabsCount)
	assert.False(t, stored.LastActivityAt.IsZero())

	// second pass: lab-1 changed, lab-2 vanished
	f.pub.labEvents = nil
	f.svc.labs = []types.ServiceLab{
		{ID: "lab-1", Title: "ospf basics", State: "STOPPED", Owner: "alice", NodeCount: 4},
	}
	res = f.mediator.Dispatch(context.Background(), &RefreshWorkerLabs{WorkerID: w.ID})
	require.Equal(t, StatusOK, res.Status)
	summary = res.Data.(LabsRefreshSummary)
	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Removed)
	assert.ElementsMatch(t, []string{"lab.updated", "lab.deleted"}, f.pub.labEventTypes())

	rec, err := f.store.GetLabRecord(w.ID, "lab-1")
	require.NoError(t, err)
	assert.Equal(t, "STOPPED", rec.State)
	require.Len(t, rec.OperationHistory, 1)
	assert.Equal(t, "STARTED", rec.OperationHistory[0].PreviousState)

	_, err = f.store.GetLabRecord(w.ID, "lab-2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRefreshWorkerLabsUnchangedEmitsNothing(t *testing.T) {
	f := newFixture(t)
	w := f.seedWorker(t, types.WorkerStatusRunning, availableWorker)
	f.svc.labs = []types.ServiceLab{{ID: "lab-1", Title: "ospf basics", State: "STARTED"}}

	f.mediator.Dispatch(context.Background(), &RefreshWorkerLabs{WorkerID: w.ID})
	f.pub.labEvents = nil

	res := f.mediator.Dispatch(context.Background(), &RefreshWorkerLabs{WorkerID: w.ID})
	require.Equal(t, StatusOK, res.Status)
	summary := res.Data.(LabsRefreshSummary)
	assert.Zero(t, summary.Created+summary.Updated+summary.Removed)
	assert.Empty(t, f.pub.labEvents)
}

func TestRefreshWorkerLabsGuards(t *testing.T) {
	tests := []struct {
		name   string
		status types.WorkerStatus
		svc    types.ServiceStatus
	}{
		{"stopped worker", types.WorkerStatusStopped, types.ServiceStatusAvailable},
		{"service unavailable", types.WorkerStatusRunning, types.ServiceStatusUnavailable},
		{"service unknown", types.WorkerStatusRunning, types.ServiceStatusUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			w := f.seedWorker(t, tt.status, func(w *types.Worker) {
				w.Service.Status = tt.svc
			})
			f.svc.labs = []types.ServiceLab{{ID: "lab-1", State: "STARTED"}}

			res := f.mediator.Dispatch(context.Background(), &RefreshWorkerLabs{WorkerID: w.ID})
			require.Equal(t, StatusOK, res.Status)
			assert.True(t, res.Data.(LabsRefreshSummary).Skipped)

			recs, err := f.store.ListLabRecordsByWorker(w.ID)
			require.NoError(t, err)
			assert.Empty(t, recs)
		})
	}
}

func TestDeleteLabTwoPhase(t *testing.T) {
	f := newFixture(t)
	w := f.seedWorker(t, types.WorkerStatusRunning, availableWorker)
	require.NoError(t, f.store.SaveLabRecord(&types.LabRecord{
		ID: "r1", WorkerID: w.ID, LabID: "lab-1", Title: "ospf basics", State: "STOPPED",
	}))

	res := f.mediator.Dispatch(context.Background(), &DeleteLab{WorkerID: w.ID, LabID: "lab-1"})
	require.Equal(t, StatusOK, res.Status, res.Message)

	assert.Equal(t, []string{"lab-1"}, f.svc.deleted)
	_, err := f.store.GetLabRecord(w.ID, "lab-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, []string{"lab.deleted"}, f.pub.labEventTypes())
}

func TestDeleteLabGoneOnService(t *testing.T) {
	f := newFixture(t)
	w := f.seedWorker(t, types.WorkerStatusRunning, availableWorker)
	require.NoError(t, f.store.SaveLabRecord(&types.LabRecord{
		ID: "r1", WorkerID: w.ID, LabID: "lab-1", State: "STOPPED",
	}))
	f.svc.deleteErr = &service.IntegrationError{Kind: service.KindNotFound, Op: "delete_lab"}

	// the stale local record is still cleaned up
	res := f.mediator.Dispatch(context.Background(), &DeleteLab{WorkerID: w.ID, LabID: "lab-1"})
	require.Equal(t, StatusOK, res.Status)
	_, err := f.store.GetLabRecord(w.ID, "lab-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteLabUnknownEverywhere(t *testing.T) {
	f := newFixture(t)
	w := f.seedWorker(t, types.WorkerStatusRunning, availableWorker)
	f.svc.deleteErr = &service.IntegrationError{Kind: service.KindNotFound, Op: "delete_lab"}

	res := f.mediator.Dispatch(context.Background(), &DeleteLab{WorkerID: w.ID, LabID: "lab-ghost"})
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestDeleteLabServiceFailureAborts(t *testing.T) {
	f := newFixture(t)
	w := f.seedWorker(t, types.WorkerStatusRunning, availableWorker)
	require.NoError(t, f.store.SaveLabRecord(&types.LabRecord{
		ID: "r1", WorkerID: w.ID, LabID: "lab-1", State: "STARTED",
	}))
	f.svc.deleteErr = &service.IntegrationError{Kind: service.KindTimeout, Op: "delete_lab"}

	res := f.mediator.Dispatch(context.Background(), &DeleteLab{WorkerID: w.ID, LabID: "lab-1"})
	assert.Equal(t, StatusFailedDependency, res.Status)

	// the local record is untouched when the Service delete fails
	_, err := f.store.GetLabRecord(w.ID, "lab-1")
	assert.NoError(t, err)
}
