package command

import (
	"context"

	"github.com/labfleet/labfleet/pkg/types"
)

// SetIdleDetection flips the auto-pause opt-in. Toggling to the current
// value is a no-op and emits nothing.
func (h *Handlers) SetIdleDetection(ctx context.Context, cmd Command) Result {
	c := cmd.(*SetIdleDetection)
	a, fail := h.load(c.WorkerID)
	if fail != nil {
		return *fail
	}
	if !a.SetIdleDetection(c.Enabled, h.now()) {
		return OK(a.Worker)
	}
	if err := h.persist(a, true); err != nil {
		return Internal(err)
	}
	return OK(a.Worker)
}

// DetectWorkerIdle auto-pauses a running, opted-in worker that has hosted no
// labs for the whole idle window. The pause is recorded first, then the stop
// is dispatched as its own command.
func (h *Handlers) DetectWorkerIdle(ctx context.Context, cmd Command) Result {
	c := cmd.(*DetectWorkerIdle)
	a, fail := h.load(c.WorkerID)
	if fail != nil {
		return *fail
	}
	w := a.Worker
	if !w.IdleDetectionEnabled || w.PausedBySystem || w.Status != types.WorkerStatusRunning {
		return OK(map[string]bool{"idle": false})
	}
	if w.Service.LabsCount > 0 {
		return OK(map[string]bool{"idle": false})
	}

	lastActivity := w.LastActivityAt
	if lastActivity.IsZero() {
		lastActivity = w.CreatedAt
	}
	now := h.now()
	if now.Sub(lastActivity) < h.settings.IdleWindow {
		return OK(map[string]bool{"idle": false})
	}

	if err := a.AutoPause(lastActivity, now); err != nil {
		return Conflict("%v", err)
	}
	if err := h.persist(a, true); err != nil {
		return Internal(err)
	}
	h.logger.Info().
		Str("worker_id", c.WorkerID).
		Time("idle_since", lastActivity).
		Msg("idle worker auto-paused")

	if res := h.mediator.Dispatch(ctx, &StopWorker{WorkerID: c.WorkerID, PausedBySystem: true}); res.Failed() {
		h.logger.Warn().
			Str("worker_id", c.WorkerID).
			Str("message", res.Message).
			Msg("auto-pause stop dispatch failed")
		return res
	}
	return OK(map[string]bool{"idle": true})
}
