package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/labfleet/labfleet/pkg/command"
	"github.com/labfleet/labfleet/pkg/storage"
	"github.com/labfleet/labfleet/pkg/types"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz verifies the store answers before reporting ready
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.ListWorkers(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func decode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) handleCreateWorker(w http.ResponseWriter, r *http.Request) {
	var cmd command.CreateWorker
	if err := decode(r, &cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed payload: " + err.Error()})
		return
	}
	cmd.Region = chi.URLParam(r, "region")
	writeResult(w, s.mediator.Dispatch(r.Context(), &cmd), http.StatusCreated)
}

func (s *Server) handleImportWorker(w http.ResponseWriter, r *http.Request) {
	var cmd command.ImportWorker
	if err := decode(r, &cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed payload: " + err.Error()})
		return
	}
	cmd.Region = chi.URLParam(r, "region")
	writeResult(w, s.mediator.Dispatch(r.Context(), &cmd), http.StatusCreated)
}

func (s *Server) handleBulkImport(w http.ResponseWriter, r *http.Request) {
	var cmd command.BulkImportWorkers
	if err := decode(r, &cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed payload: " + err.Error()})
		return
	}
	cmd.Region = chi.URLParam(r, "region")
	writeResult(w, s.mediator.Dispatch(r.Context(), &cmd), http.StatusOK)
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := s.store.ListWorkers()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "listing workers failed"})
		return
	}
	if region := chi.URLParam(r, "region"); region != "" {
		filtered := workers[:0]
		for _, worker := range workers {
			if worker.Region == region {
				filtered = append(filtered, worker)
			}
		}
		workers = filtered
	}
	writeJSON(w, http.StatusOK, workers)
}

// getWorker resolves the path id; a nil return means the response is written
func (s *Server) getWorker(w http.ResponseWriter, r *http.Request) *types.Worker {
	worker, err := s.store.GetWorker(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "worker not found"})
		} else {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "loading worker failed"})
		}
		return nil
	}
	return worker
}

func (s *Server) handleGetWorker(w http.ResponseWriter, r *http.Request) {
	if worker := s.getWorker(w, r); worker != nil {
		writeJSON(w, http.StatusOK, worker)
	}
}

func (s *Server) handleTerminateWorker(w http.ResponseWriter, r *http.Request) {
	cmd := command.TerminateWorker{WorkerID: chi.URLParam(r, "id")}
	writeResult(w, s.mediator.Dispatch(r.Context(), &cmd), http.StatusAccepted)
}

func (s *Server) handleStartWorker(w http.ResponseWriter, r *http.Request) {
	cmd := command.StartWorker{WorkerID: chi.URLParam(r, "id")}
	writeResult(w, s.mediator.Dispatch(r.Context(), &cmd), http.StatusOK)
}

func (s *Server) handleStopWorker(w http.ResponseWriter, r *http.Request) {
	cmd := command.StopWorker{WorkerID: chi.URLParam(r, "id")}
	writeResult(w, s.mediator.Dispatch(r.Context(), &cmd), http.StatusOK)
}

// handleRefreshWorker is the manual refresh entry point; it shares the
// scheduler's per-worker throttle so a UI cannot hammer a worker
func (s *Server) handleRefreshWorker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.throttle != nil && !s.throttle.Claim("refresh", id) {
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "worker was refreshed recently"})
		return
	}
	cmd := command.RefreshWorker{WorkerID: id}
	writeResult(w, s.mediator.Dispatch(r.Context(), &cmd), http.StatusOK)
}

func (s *Server) handleUpdateTags(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tags map[string]string `json:"tags"`
	}
	if err := decode(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed payload: " + err.Error()})
		return
	}
	cmd := command.UpdateWorkerTags{WorkerID: chi.URLParam(r, "id"), Tags: body.Tags}
	writeResult(w, s.mediator.Dispatch(r.Context(), &cmd), http.StatusOK)
}

func (s *Server) handleWorkerStatus(w http.ResponseWriter, r *http.Request) {
	worker := s.getWorker(w, r)
	if worker == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":               worker.ID,
		"status":           worker.Status,
		"service_status":   worker.Service.Status,
		"paused_by_system": worker.PausedBySystem,
	})
}

func (s *Server) handleWorkerMetrics(w http.ResponseWriter, r *http.Request) {
	worker := s.getWorker(w, r)
	if worker == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":                worker.ID,
		"cloud_health":      worker.CloudHealth,
		"cloud_utilization": worker.CloudUtilization,
		"service":           worker.Service,
	})
}

func (s *Server) handleWorkerLabs(w http.ResponseWriter, r *http.Request) {
	worker := s.getWorker(w, r)
	if worker == nil {
		return
	}
	labs, err := s.store.ListLabRecordsByWorker(worker.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "listing labs failed"})
		return
	}
	writeJSON(w, http.StatusOK, labs)
}

func (s *Server) handleDeleteLab(w http.ResponseWriter, r *http.Request) {
	cmd := command.DeleteLab{
		WorkerID: chi.URLParam(r, "id"),
		LabID:    chi.URLParam(r, "labID"),
	}
	writeResult(w, s.mediator.Dispatch(r.Context(), &cmd), http.StatusOK)
}

func (s *Server) handleIdleDetection(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cmd := command.SetIdleDetection{WorkerID: chi.URLParam(r, "id"), Enabled: enabled}
		writeResult(w, s.mediator.Dispatch(r.Context(), &cmd), http.StatusOK)
	}
}
