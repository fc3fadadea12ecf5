package command

import (
	"context"
	"time"

	"github.com/labfleet/labfleet/pkg/cloud"
	"github.com/labfleet/labfleet/pkg/domain"
	"github.com/labfleet/labfleet/pkg/types"
)

// SyncWorkerCloudMetrics refreshes the cloud health and utilization slots.
// The two reads are independent: one failing never blocks the other, and a
// failure is reported on the event stream instead of failing the command
// unless both reads fail. Instance state observations drive lifecycle
// transitions the control plane did not initiate.
func (h *Handlers) SyncWorkerCloudMetrics(ctx context.Context, cmd Command) Result {
	c := cmd.(*SyncWorkerCloudMetrics)
	a, fail := h.load(c.WorkerID)
	if fail != nil {
		return *fail
	}
	if !a.Worker.Status.Active() {
		return Conflict("worker %s is not active", c.WorkerID)
	}
	if a.Worker.CloudInstanceID == "" {
		return OK(map[string]string{"skipped": "no cloud instance yet"})
	}

	logger := h.logger.With().Str("worker_id", c.WorkerID).Logger()
	successes := 0
	var firstErr error

	status, err := h.cloud.DescribeStatus(ctx, a.Worker.Region, a.Worker.CloudInstanceID)
	switch {
	case err != nil && cloud.IsNotFound(err) && a.Worker.Status == types.WorkerStatusTerminating:
		return h.confirmTerminated(a)
	case err != nil:
		firstErr = err
		logger.Warn().Err(err).Msg("cloud status read failed")
		h.pub.PublishSyncFailed(c.WorkerID, "cloud_status", err.Error())
	default:
		successes++
		now := h.now()
		a.RecordCloudHealth(types.CloudHealth{
			InstanceState: status.InstanceState,
			SystemStatus:  status.SystemStatus,
			LastCheckedAt: now,
		})
		if res, done := h.observeInstanceState(a, status.InstanceState, now); done {
			return res
		}
	}

	util, err := h.cloud.GetUtilization(ctx, a.Worker.Region, a.Worker.CloudInstanceID, h.settings.UtilizationWindow)
	if err != nil {
		if firstErr == nil {
			firstErr = err
		}
		logger.Warn().Err(err).Msg("cloud utilization read failed")
		h.pub.PublishSyncFailed(c.WorkerID, "cloud_utilization", err.Error())
	} else {
		successes++
		a.RecordCloudUtilization(types.CloudUtilization{
			CPUPercent:         util.CPUPercent,
			MemoryPercent:      util.MemoryPercent,
			DetailedMonitoring: a.Worker.CloudUtilization.DetailedMonitoring,
			LastCollectedAt:    h.now(),
		})
	}

	if successes == 0 {
		return FailedDependency(string(cloud.KindOf(firstErr)), "cloud metrics sync failed: %v", firstErr)
	}
	if err := h.persist(a, true); err != nil {
		return Internal(err)
	}
	return OK(a.Worker)
}

// observeInstanceState folds an externally observed instance state into the
// lifecycle. Returns a terminal result when the observation ends the worker.
func (h *Handlers) observeInstanceState(a *domain.Aggregate, state string, now time.Time) (Result, bool) {
	switch state {
	case "running":
		switch a.Worker.Status {
		case types.WorkerStatusStarting, types.WorkerStatusProvisioned, types.WorkerStatusImported:
			if err := a.MarkStatus(types.WorkerStatusRunning, "observed running", now); err == nil {
				a.ObserveActivity(now)
			}
		}
	case "stopped":
		if a.Worker.Status == types.WorkerStatusStopping {
			_ = a.MarkStatus(types.WorkerStatusStopped, "observed stopped", now)
		}
	case "terminated":
		if a.Worker.Status == types.WorkerStatusTerminating {
			return h.confirmTerminated(a), true
		}
	}
	return Result{}, false
}

// confirmTerminated ends a terminating worker once the cloud confirms the
// instance is gone; lab records go with it
func (h *Handlers) confirmTerminated(a *domain.Aggregate) Result {
	if err := a.Terminated(h.now()); err != nil {
		return Internal(err)
	}
	if err := h.persist(a, true); err != nil {
		return Internal(err)
	}
	if err := h.store.DeleteWorker(a.Worker.ID); err != nil {
		h.logger.Warn().Err(err).Str("worker_id", a.Worker.ID).Msg("terminated worker cleanup failed")
	}
	h.logger.Info().Str("worker_id", a.Worker.ID).Msg("termination confirmed by cloud")
	return OK(a.Worker)
}

// SyncWorkerServiceData polls the four Service read endpoints independently
// and folds whatever succeeded into the Service slot. Only a total blackout
// marks the Service unavailable; a reachable Service that is not ready, or
// whose health document is invalid, is degraded.
func (h *Handlers) SyncWorkerServiceData(ctx context.Context, cmd Command) Result {
	c := cmd.(*SyncWorkerServiceData)
	a, fail := h.load(c.WorkerID)
	if fail != nil {
		return *fail
	}
	if a.Worker.Status != types.WorkerStatusRunning {
		return OK(map[string]string{"skipped": "worker not running"})
	}

	client, err := h.services.ClientFor(a.Worker)
	if err != nil {
		return Conflict("no service endpoint: %v", err)
	}

	logger := h.logger.With().Str("worker_id", c.WorkerID).Logger()
	reached := false
	report := func(step string, err error) {
		logger.Warn().Err(err).Str("step", step).Msg("service read failed")
		h.pub.PublishSyncFailed(c.WorkerID, step, err.Error())
	}

	info, err := client.GetSystemInformation(ctx)
	if err != nil {
		report("service_information", err)
	} else {
		reached = true
	}
	health, err := client.GetSystemHealth(ctx)
	if err != nil {
		report("service_health", err)
	} else {
		reached = true
	}
	stats, err := client.GetSystemStats(ctx)
	if err != nil {
		report("service_stats", err)
	} else {
		reached = true
	}
	licensing, err := client.GetLicensing(ctx)
	if err != nil {
		report("service_licensing", err)
	} else {
		reached = true
	}

	state := a.Worker.Service
	state.LastSyncedAt = h.now()
	if !reached {
		state.Status = types.ServiceStatusUnavailable
		state.Ready = false
		state.Degraded = false
	} else {
		// any successful read is enough to stay available; not-ready or an
		// invalid health document only marks the degraded slot
		state.Status = types.ServiceStatusAvailable
		state.Degraded = false
		if info != nil {
			state.Version = info.Version
			state.Ready = info.Ready
			state.SystemInfo = info.Raw
			if !info.Ready {
				state.Degraded = true
			}
		}
		if health != nil {
			state.HealthInfo = health.Raw
			if !health.Valid {
				state.Degraded = true
			}
		}
		if stats != nil {
			state.LabsCount = stats.Labs
		}
		if licensing != nil {
			state.LicenseInfo = licensing.Raw
		}
	}

	a.RecordServiceState(state)
	if err := h.persist(a, true); err != nil {
		return Internal(err)
	}
	return OK(a.Worker.Service)
}
