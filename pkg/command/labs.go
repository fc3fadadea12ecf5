package command

import (
	"context"

	"github.com/labfleet/labfleet/pkg/domain"
	"github.com/labfleet/labfleet/pkg/service"
	"github.com/labfleet/labfleet/pkg/types"
	"github.com/samber/lo"
)

// RefreshWorkerLabs reconciles the local lab records against the Service's
// inventory: new labs are projected, changed labs diffed into their history,
// and records whose lab vanished on the Service are removed. A worker that
// is not running with an available Service is skipped without mutation.
func (h *Handlers) RefreshWorkerLabs(ctx context.Context, cmd Command) Result {
	c := cmd.(*RefreshWorkerLabs)
	a, fail := h.load(c.WorkerID)
	if fail != nil {
		return *fail
	}
	if a.Worker.Status != types.WorkerStatusRunning || a.Worker.Service.Status != types.ServiceStatusAvailable {
		return OK(LabsRefreshSummary{Skipped: true})
	}

	client, err := h.services.ClientFor(a.Worker)
	if err != nil {
		return Conflict("no service endpoint: %v", err)
	}
	labs, err := client.ListLabs(ctx)
	if err != nil {
		h.pub.PublishSyncFailed(c.WorkerID, "service_labs", err.Error())
		return FailedDependency(string(service.KindOf(err)), "listing labs failed: %v", err)
	}

	existing, err := h.store.ListLabRecordsByWorker(c.WorkerID)
	if err != nil {
		return Internal(err)
	}
	byLabID := lo.SliceToMap(existing, func(r *types.LabRecord) (string, *types.LabRecord) {
		return r.LabID, r
	})

	now := h.now()
	summary := LabsRefreshSummary{}
	seen := make(map[string]struct{}, len(labs))

	for _, lab := range labs {
		seen[lab.ID] = struct{}{}
		if rec, ok := byLabID[lab.ID]; ok {
			changed := domain.UpdateLabRecord(rec, lab, now)
			if err := h.store.SaveLabRecord(rec); err != nil {
				return Internal(err)
			}
			if changed {
				summary.Updated++
				h.pub.PublishLabEvent(domain.LabEvent{Kind: domain.EventLabUpdated, WorkerID: c.WorkerID, Lab: *rec, At: now})
			}
			continue
		}
		rec := domain.NewLabRecord(c.WorkerID, lab, now)
		if err := h.store.SaveLabRecord(rec); err != nil {
			return Internal(err)
		}
		summary.Created++
		h.pub.PublishLabEvent(domain.LabEvent{Kind: domain.EventLabCreated, WorkerID: c.WorkerID, Lab: *rec, At: now})
	}

	orphans := lo.Filter(existing, func(r *types.LabRecord, _ int) bool {
		_, ok := seen[r.LabID]
		return !ok
	})
	for _, rec := range orphans {
		if err := h.store.DeleteLabRecord(c.WorkerID, rec.LabID); err != nil {
			return Internal(err)
		}
		summary.Removed++
		h.pub.PublishLabEvent(domain.LabEvent{Kind: domain.EventLabDeleted, WorkerID: c.WorkerID, Lab: *rec, At: now})
	}

	state := a.Worker.Service
	state.LabsCount = len(labs)
	state.LastSyncedAt = now
	a.RecordServiceState(state)
	if len(labs) > 0 {
		a.ObserveActivity(now)
	}
	if err := h.persist(a, true); err != nil {
		return Internal(err)
	}

	h.logger.Debug().
		Str("worker_id", c.WorkerID).
		Int("created", summary.Created).
		Int("updated", summary.Updated).
		Int("removed", summary.Removed).
		Msg("labs reconciled")
	return OK(summary)
}

// DeleteLab removes a lab in two phases: the Service is authoritative, so
// the remote delete goes first; a local cleanup failure after a successful
// remote delete is logged and the command still succeeds.
func (h *Handlers) DeleteLab(ctx context.Context, cmd Command) Result {
	c := cmd.(*DeleteLab)
	a, fail := h.load(c.WorkerID)
	if fail != nil {
		return *fail
	}
	if a.Worker.Status != types.WorkerStatusRunning {
		return Conflict("worker %s is not running", c.WorkerID)
	}

	client, err := h.services.ClientFor(a.Worker)
	if err != nil {
		return Conflict("no service endpoint: %v", err)
	}

	remoteMissing := false
	if err := client.DeleteLab(ctx, c.LabID); err != nil {
		if service.KindOf(err) != service.KindNotFound {
			return FailedDependency(string(service.KindOf(err)), "deleting lab on service failed: %v", err)
		}
		remoteMissing = true
	}

	rec, err := h.store.GetLabRecord(c.WorkerID, c.LabID)
	if err != nil {
		if remoteMissing {
			return NotFound("lab %s not found on worker %s", c.LabID, c.WorkerID)
		}
		return OK(map[string]string{"lab_id": c.LabID})
	}
	if err := h.store.DeleteLabRecord(c.WorkerID, c.LabID); err != nil {
		h.logger.Warn().Err(err).
			Str("worker_id", c.WorkerID).
			Str("lab_id", c.LabID).
			Msg("local lab record cleanup failed after remote delete")
		return OK(map[string]string{"lab_id": c.LabID})
	}
	h.pub.PublishLabEvent(domain.LabEvent{Kind: domain.EventLabDeleted, WorkerID: c.WorkerID, Lab: *rec, At: h.now()})
	return OK(map[string]string{"lab_id": c.LabID})
}
