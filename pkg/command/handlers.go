package command

import (
	"errors"
	"time"

	"github.com/labfleet/labfleet/pkg/cloud"
	"github.com/labfleet/labfleet/pkg/domain"
	"github.com/labfleet/labfleet/pkg/log"
	"github.com/labfleet/labfleet/pkg/service"
	"github.com/labfleet/labfleet/pkg/storage"
	"github.com/labfleet/labfleet/pkg/types"
	"github.com/rs/zerolog"
)

// EventPublisher is the fan-out port the handlers publish through after a
// successful persist. Implemented by events.Relay.
type EventPublisher interface {
	PublishWorkerEvents(workerID string, events []domain.Event)
	PublishSnapshot(w *types.Worker)
	PublishSyncFailed(workerID, syncKind, message string)
	PublishLabEvent(e domain.LabEvent)
}

// Settings tunes handler behavior
type Settings struct {
	// IdleWindow is how long a worker must stay lab-free before auto-pause
	IdleWindow time.Duration
	// UtilizationWindow is the lookback for cloud utilization reads
	UtilizationWindow time.Duration
}

// Handlers owns the dependencies shared by every command handler and
// registers one handler per command on the mediator.
type Handlers struct {
	store    storage.Store
	cloud    cloud.API
	services service.Factory
	mediator *Mediator
	pub      EventPublisher
	settings Settings
	now      func() time.Time
	logger   zerolog.Logger
}

// NewHandlers wires the handlers and registers them on the mediator
func NewHandlers(m *Mediator, store storage.Store, cloudAPI cloud.API, services service.Factory, pub EventPublisher, settings Settings) *Handlers {
	if settings.IdleWindow == 0 {
		settings.IdleWindow = time.Hour
	}
	if settings.UtilizationWindow == 0 {
		settings.UtilizationWindow = 10 * time.Minute
	}
	h := &Handlers{
		store:    store,
		cloud:    cloudAPI,
		services: services,
		mediator: m,
		pub:      pub,
		settings: settings,
		now:      time.Now,
		logger:   log.WithComponent("command"),
	}

	m.Register(NameCreateWorker, h.CreateWorker)
	m.Register(NameImportWorker, h.ImportWorker)
	m.Register(NameBulkImportWorkers, h.BulkImportWorkers)
	m.Register(NameStartWorker, h.StartWorker)
	m.Register(NameStopWorker, h.StopWorker)
	m.Register(NameTerminateWorker, h.TerminateWorker)
	m.Register(NameUpdateWorkerTags, h.UpdateWorkerTags)
	m.Register(NameSyncWorkerCloudMetrics, h.SyncWorkerCloudMetrics)
	m.Register(NameSyncWorkerServiceData, h.SyncWorkerServiceData)
	m.Register(NameRefreshWorkerLabs, h.RefreshWorkerLabs)
	m.Register(NameDeleteLab, h.DeleteLab)
	m.Register(NameSetIdleDetection, h.SetIdleDetection)
	m.Register(NameDetectWorkerIdle, h.DetectWorkerIdle)
	m.Register(NameRefreshWorker, h.RefreshWorker)
	return h
}

// load fetches a worker and wraps it for mutation
func (h *Handlers) load(workerID string) (*domain.Aggregate, *Result) {
	w, err := h.store.GetWorker(workerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			r := NotFound("worker %s not found", workerID)
			return nil, &r
		}
		r := Internal(err)
		return nil, &r
	}
	return domain.Load(w), nil
}

// persist saves the aggregate and publishes its pending events in order,
// optionally followed by a full snapshot envelope
func (h *Handlers) persist(a *domain.Aggregate, snapshot bool) error {
	if err := h.store.SaveWorker(a.Worker); err != nil {
		return err
	}
	if evs := a.Events(); len(evs) > 0 {
		h.pub.PublishWorkerEvents(a.Worker.ID, evs)
	}
	if snapshot {
		h.pub.PublishSnapshot(a.Worker)
	}
	return nil
}
