package command

import (
	"context"
	"errors"

	"github.com/labfleet/labfleet/pkg/cloud"
	"github.com/labfleet/labfleet/pkg/domain"
	"github.com/labfleet/labfleet/pkg/storage"
	"github.com/labfleet/labfleet/pkg/types"
	"github.com/samber/lo"
)

// ImportWorker adopts one existing instance. An instance already backing a
// worker is a conflict; a terminated instance cannot be adopted.
func (h *Handlers) ImportWorker(ctx context.Context, cmd Command) Result {
	c := cmd.(*ImportWorker)

	existing, err := h.store.GetWorkerByInstanceID(c.InstanceID)
	if err == nil {
		return Conflict("instance %s already imported as worker %s", c.InstanceID, existing.ID)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return Internal(err)
	}

	facts, err := h.cloud.DescribeInstance(ctx, c.Region, c.InstanceID)
	if err != nil {
		if cloud.IsNotFound(err) {
			return NotFound("instance %s not found in %s", c.InstanceID, c.Region)
		}
		return FailedDependency(string(cloud.KindOf(err)), "describe instance failed: %v", err)
	}

	a, err := domain.ImportWorker(c.Name, c.Region, c.CreatedBy, *facts, h.now())
	if err != nil {
		return Conflict("cannot import instance %s: %v", c.InstanceID, err)
	}
	if err := h.persist(a, true); err != nil {
		return Internal(err)
	}
	h.logger.Info().
		Str("worker_id", a.Worker.ID).
		Str("cloud_instance_id", c.InstanceID).
		Str("region", c.Region).
		Msg("worker imported")
	return OK(a.Worker)
}

// BulkImportWorkers discovers every instance of an image and imports the ones
// not already managed. Each import is dispatched as its own command so one
// bad instance never aborts the batch.
func (h *Handlers) BulkImportWorkers(ctx context.Context, cmd Command) Result {
	c := cmd.(*BulkImportWorkers)

	imageIDs := []string{c.ImageID}
	if c.ImageID == "" {
		ids, err := h.cloud.DescribeImageIDs(ctx, c.Region, c.ImageName)
		if err != nil {
			return FailedDependency(string(cloud.KindOf(err)), "image lookup failed: %v", err)
		}
		if len(ids) == 0 {
			return NotFound("no image matching %q in %s", c.ImageName, c.Region)
		}
		imageIDs = ids
	}

	instances, err := h.cloud.ListInstances(ctx, c.Region, map[string][]string{"image-id": imageIDs})
	if err != nil {
		return FailedDependency(string(cloud.KindOf(err)), "instance discovery failed: %v", err)
	}

	workers, err := h.store.ListWorkers()
	if err != nil {
		return Internal(err)
	}
	managed := lo.SliceToMap(workers, func(w *types.Worker) (string, struct{}) {
		return w.CloudInstanceID, struct{}{}
	})

	fresh, known := lo.FilterReject(instances, func(f types.VMFacts, _ int) bool {
		_, seen := managed[f.InstanceID]
		return !seen
	})

	summary := BulkImportSummary{
		Imported: []string{},
		Skipped: lo.Map(known, func(f types.VMFacts, _ int) string {
			return f.InstanceID
		}),
		Failed: map[string]string{},
	}
	for _, f := range fresh {
		res := h.mediator.Dispatch(ctx, &ImportWorker{
			Region:     c.Region,
			InstanceID: f.InstanceID,
			CreatedBy:  c.CreatedBy,
		})
		if res.Failed() {
			summary.Failed[f.InstanceID] = res.Message
			continue
		}
		if w, ok := res.Data.(*types.Worker); ok {
			summary.Imported = append(summary.Imported, w.ID)
		}
	}
	h.logger.Info().
		Str("region", c.Region).
		Int("imported", len(summary.Imported)).
		Int("skipped", len(summary.Skipped)).
		Int("failed", len(summary.Failed)).
		Msg("bulk import finished")
	return OK(summary)
}
