package command

import (
	"context"
	"time"

	"github.com/labfleet/labfleet/pkg/cloud"
	"github.com/labfleet/labfleet/pkg/domain"
	"github.com/labfleet/labfleet/pkg/types"
)

// StartWorker starts the VM and moves the worker to starting. A manual start
// of a system-paused worker also clears the pause flag.
func (h *Handlers) StartWorker(ctx context.Context, cmd Command) Result {
	c := cmd.(*StartWorker)
	a, fail := h.load(c.WorkerID)
	if fail != nil {
		return *fail
	}
	if !domain.CanTransition(a.Worker.Status, types.WorkerStatusStarting) {
		return Conflict("cannot start worker in status %s", a.Worker.Status)
	}
	if a.Worker.CloudInstanceID == "" {
		return Conflict("worker %s has no cloud instance", c.WorkerID)
	}

	if err := h.cloud.StartInstance(ctx, a.Worker.Region, a.Worker.CloudInstanceID); err != nil {
		return FailedDependency(string(cloud.KindOf(err)), "start instance failed: %v", err)
	}

	now := h.now()
	if err := a.MarkStatus(types.WorkerStatusStarting, "start requested", now); err != nil {
		return Internal(err)
	}
	a.Resume(now)
	if err := h.persist(a, true); err != nil {
		return Internal(err)
	}
	return OK(a.Worker)
}

// StopWorker stops the VM and moves the worker to stopping
func (h *Handlers) StopWorker(ctx context.Context, cmd Command) Result {
	c := cmd.(*StopWorker)
	a, fail := h.load(c.WorkerID)
	if fail != nil {
		return *fail
	}
	if !domain.CanTransition(a.Worker.Status, types.WorkerStatusStopping) {
		return Conflict("cannot stop worker in status %s", a.Worker.Status)
	}
	if a.Worker.CloudInstanceID == "" {
		return Conflict("worker %s has no cloud instance", c.WorkerID)
	}

	if err := h.cloud.StopInstance(ctx, a.Worker.Region, a.Worker.CloudInstanceID); err != nil {
		return FailedDependency(string(cloud.KindOf(err)), "stop instance failed: %v", err)
	}

	reason := "stop requested"
	if c.PausedBySystem {
		reason = "auto-paused while idle"
	}
	if err := a.MarkStatus(types.WorkerStatusStopping, reason, h.now()); err != nil {
		return Internal(err)
	}
	if err := h.persist(a, true); err != nil {
		return Internal(err)
	}
	return OK(a.Worker)
}

// TerminateWorker requests teardown. The record stays in terminating until a
// later cloud sync observes the instance gone; only then is it deleted. A
// worker that never got an instance is finalized immediately.
func (h *Handlers) TerminateWorker(ctx context.Context, cmd Command) Result {
	c := cmd.(*TerminateWorker)
	a, fail := h.load(c.WorkerID)
	if fail != nil {
		return *fail
	}
	switch a.Worker.Status {
	case types.WorkerStatusTerminated:
		return Conflict("worker %s is already terminated", c.WorkerID)
	case types.WorkerStatusTerminating:
		return OK(a.Worker)
	}

	now := h.now()
	if a.Worker.CloudInstanceID == "" {
		return h.finalizeTermination(a, now)
	}

	err := h.cloud.TerminateInstance(ctx, a.Worker.Region, a.Worker.CloudInstanceID)
	if err != nil && !cloud.IsNotFound(err) {
		return FailedDependency(string(cloud.KindOf(err)), "terminate instance failed: %v", err)
	}
	if err := a.MarkStatus(types.WorkerStatusTerminating, "terminate requested", now); err != nil {
		return Conflict("cannot terminate worker in status %s", a.Worker.Status)
	}
	if cloud.IsNotFound(err) {
		// instance already gone, no confirmation to wait for
		return h.finalizeTermination(a, now)
	}
	if perr := h.persist(a, true); perr != nil {
		return Internal(perr)
	}
	return OK(a.Worker)
}

// finalizeTermination records the terminal event and removes the worker and
// its lab records
func (h *Handlers) finalizeTermination(a *domain.Aggregate, now time.Time) Result {
	if a.Worker.Status != types.WorkerStatusTerminating {
		if err := a.MarkStatus(types.WorkerStatusTerminating, "terminate requested", now); err != nil {
			return Conflict("cannot terminate worker in status %s", a.Worker.Status)
		}
	}
	if err := a.Terminated(now); err != nil {
		return Internal(err)
	}
	if err := h.persist(a, true); err != nil {
		return Internal(err)
	}
	if err := h.store.DeleteWorker(a.Worker.ID); err != nil {
		h.logger.Warn().Err(err).Str("worker_id", a.Worker.ID).Msg("terminated worker cleanup failed")
	}
	h.logger.Info().Str("worker_id", a.Worker.ID).Msg("worker terminated")
	return OK(a.Worker)
}

// UpdateWorkerTags pushes the tag set to the cloud, then to the record
func (h *Handlers) UpdateWorkerTags(ctx context.Context, cmd Command) Result {
	c := cmd.(*UpdateWorkerTags)
	a, fail := h.load(c.WorkerID)
	if fail != nil {
		return *fail
	}
	if !a.Worker.Status.Active() {
		return Conflict("worker %s is not active", c.WorkerID)
	}

	if a.Worker.CloudInstanceID != "" {
		if err := h.cloud.SetTags(ctx, a.Worker.Region, a.Worker.CloudInstanceID, c.Tags); err != nil {
			return FailedDependency(string(cloud.KindOf(err)), "set tags failed: %v", err)
		}
	}
	a.SetTags(c.Tags, h.now())
	if err := h.persist(a, true); err != nil {
		return Internal(err)
	}
	return OK(a.Worker)
}
