package command

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/labfleet/labfleet/pkg/log"
	"github.com/labfleet/labfleet/pkg/metrics"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Command is a typed payload dispatched through the mediator
type Command interface {
	CommandName() string
}

// WorkerScoped is implemented by commands that mutate one worker aggregate;
// the mediator serializes them per worker id
type WorkerScoped interface {
	Command
	WorkerKey() string
}

// Handler executes one command kind
type Handler func(ctx context.Context, cmd Command) Result

// Mediator maps command names to their single handler and serializes
// handling per worker aggregate. Handlers may dispatch further commands;
// nested dispatches for the worker already locked are reentrant.
type Mediator struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	locks    *keyedLocks
	validate *validator.Validate
	tracer   trace.Tracer
	logger   zerolog.Logger
}

// NewMediator creates an empty mediator; handlers register at startup
func NewMediator() *Mediator {
	return &Mediator{
		handlers: make(map[string]Handler),
		locks:    newKeyedLocks(),
		validate: validator.New(),
		tracer:   otel.Tracer("labfleet/command"),
		logger:   log.WithComponent("mediator"),
	}
}

// Register binds a handler to a command name; a duplicate registration is a
// programming error and panics at startup
func (m *Mediator) Register(name string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.handlers[name]; exists {
		panic(fmt.Sprintf("command %s already registered", name))
	}
	m.handlers[name] = h
}

// Dispatch validates and executes a command, holding the per-worker lock for
// worker-scoped commands
func (m *Mediator) Dispatch(ctx context.Context, cmd Command) Result {
	m.mu.RLock()
	handler, ok := m.handlers[cmd.CommandName()]
	m.mu.RUnlock()
	if !ok {
		return Internal(fmt.Errorf("no handler registered for %s", cmd.CommandName()))
	}

	if err := m.validate.Struct(cmd); err != nil {
		return BadRequest("invalid %s payload: %v", cmd.CommandName(), err)
	}

	ctx, span := m.tracer.Start(ctx, cmd.CommandName())
	defer span.End()
	span.SetAttributes(attribute.String("command", cmd.CommandName()))

	if ws, ok := cmd.(WorkerScoped); ok && ws.WorkerKey() != "" {
		span.SetAttributes(attribute.String("worker_id", ws.WorkerKey()))
		unlock := m.locks.acquire(ctx, ws.WorkerKey())
		if unlock != nil {
			ctx = withLockedWorker(ctx, ws.WorkerKey())
			defer unlock()
		}
	}

	result := handler(ctx, cmd)

	metrics.CommandsTotal.WithLabelValues(cmd.CommandName(), string(result.Status)).Inc()
	if result.Failed() {
		span.SetStatus(codes.Error, result.Message)
		m.logger.Debug().
			Str("command", cmd.CommandName()).
			Str("status", string(result.Status)).
			Str("message", result.Message).
			Msg("command failed")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return result
}

type lockedWorkerKey struct{}

func withLockedWorker(ctx context.Context, workerID string) context.Context {
	return context.WithValue(ctx, lockedWorkerKey{}, workerID)
}

func lockedWorker(ctx context.Context) string {
	if v, ok := ctx.Value(lockedWorkerKey{}).(string); ok {
		return v
	}
	return ""
}

// keyedLocks serializes command handling per worker id
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the given key and returns the unlock func. When the context
// already holds the key (a handler dispatching to its own worker) it returns
// nil and the caller proceeds without re-locking.
func (k *keyedLocks) acquire(ctx context.Context, key string) func() {
	if lockedWorker(ctx) == key {
		return nil
	}
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
