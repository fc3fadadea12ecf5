package command

import (
	"context"

	"github.com/labfleet/labfleet/pkg/types"
)

// RefreshWorker is the manual on-demand composition: cloud metrics first,
// then Service data, then labs when the worker ends up running with an
// available Service. Later steps are skipped once an earlier one removes or
// fails the worker.
func (h *Handlers) RefreshWorker(ctx context.Context, cmd Command) Result {
	c := cmd.(*RefreshWorker)

	steps := map[string]Status{}

	res := h.mediator.Dispatch(ctx, &SyncWorkerCloudMetrics{WorkerID: c.WorkerID})
	steps["cloud_metrics"] = res.Status
	if res.Status == StatusNotFound {
		return res
	}

	w, err := h.store.GetWorker(c.WorkerID)
	if err != nil {
		// the sync may have confirmed a termination and removed the record
		return OK(steps)
	}

	if w.Status == types.WorkerStatusRunning {
		res = h.mediator.Dispatch(ctx, &SyncWorkerServiceData{WorkerID: c.WorkerID})
		steps["service_data"] = res.Status

		if w, err = h.store.GetWorker(c.WorkerID); err == nil &&
			w.Status == types.WorkerStatusRunning &&
			w.Service.Status == types.ServiceStatusAvailable {
			res = h.mediator.Dispatch(ctx, &RefreshWorkerLabs{WorkerID: c.WorkerID})
			steps["labs"] = res.Status
		}
	}
	return OK(steps)
}
