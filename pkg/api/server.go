package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/labfleet/labfleet/pkg/command"
	"github.com/labfleet/labfleet/pkg/events"
	"github.com/labfleet/labfleet/pkg/log"
	"github.com/labfleet/labfleet/pkg/metrics"
	"github.com/labfleet/labfleet/pkg/storage"
	"github.com/rs/zerolog"
)

// RefreshThrottle is the deduplication port shared with the scheduler: a
// manual refresh claims the same per-worker slots the background jobs use,
// so the two entry points never double-poll a worker inside the TTL.
type RefreshThrottle interface {
	Claim(kind, workerID string) bool
}

// Options configures the HTTP server
type Options struct {
	Addr      string
	Auth      TokenValidator
	Heartbeat time.Duration
}

// Server is the public REST + SSE surface of the control plane
type Server struct {
	store    storage.Store
	mediator *command.Mediator
	broker   *events.Broker
	throttle RefreshThrottle
	auth     TokenValidator

	heartbeat time.Duration
	logger    zerolog.Logger
	http      *http.Server
}

// NewServer builds the server and its route tree
func NewServer(store storage.Store, mediator *command.Mediator, broker *events.Broker, throttle RefreshThrottle, opts Options) *Server {
	if opts.Heartbeat == 0 {
		opts.Heartbeat = 15 * time.Second
	}
	if opts.Auth == nil {
		opts.Auth = StaticTokens{}
	}
	s := &Server{
		store:     store,
		mediator:  mediator,
		broker:    broker,
		throttle:  throttle,
		auth:      opts.Auth,
		heartbeat: opts.Heartbeat,
		logger:    log.WithComponent("api"),
	}
	s.http = &http.Server{
		Addr:    opts.Addr,
		Handler: s.routes(),
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/events/stream", s.handleEventStream)
		r.Get("/workers", s.handleListWorkers)

		r.Route("/workers/region/{region}/workers", func(r chi.Router) {
			r.Get("/", s.handleListWorkers)
			r.Post("/", s.handleCreateWorker)
			r.Post("/import", s.handleImportWorker)
			r.Post("/bulk-import", s.handleBulkImport)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetWorker)
				r.Delete("/", s.handleTerminateWorker)
				r.Post("/start", s.handleStartWorker)
				r.Post("/stop", s.handleStopWorker)
				r.Post("/refresh", s.handleRefreshWorker)
				r.Post("/tags", s.handleUpdateTags)
				r.Get("/status", s.handleWorkerStatus)
				r.Get("/metrics", s.handleWorkerMetrics)
				r.Get("/labs", s.handleWorkerLabs)
				r.Delete("/labs/{labID}", s.handleDeleteLab)

				r.Group(func(r chi.Router) {
					r.Use(s.requireAdmin)
					r.Post("/idle-detection/enable", s.handleIdleDetection(true))
					r.Post("/idle-detection/disable", s.handleIdleDetection(false))
				})
			})
		})
	})
	return r
}

// Start runs the listener until Shutdown
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("api server listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the route tree for tests
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// writeJSON writes a JSON body with a status code
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeResult maps a command result onto an HTTP response; okCode is the
// status for the success case
func writeResult(w http.ResponseWriter, res command.Result, okCode int) {
	switch res.Status {
	case command.StatusOK:
		writeJSON(w, okCode, res.Data)
	case command.StatusBadRequest:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: res.Message, Kind: res.ErrorKind})
	case command.StatusNotFound:
		writeJSON(w, http.StatusNotFound, errorBody{Error: res.Message, Kind: res.ErrorKind})
	case command.StatusConflict:
		writeJSON(w, http.StatusConflict, errorBody{Error: res.Message, Kind: res.ErrorKind})
	case command.StatusFailedDependency:
		writeJSON(w, http.StatusFailedDependency, errorBody{Error: res.Message, Kind: res.ErrorKind})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
