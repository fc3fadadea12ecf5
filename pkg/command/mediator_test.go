package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/labfleet/labfleet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopCommand struct {
	WorkerID string `validate:"required"`
}

func (noopCommand) CommandName() string { return "noop" }
func (c noopCommand) WorkerKey() string { return c.WorkerID }

func TestDispatchUnregisteredCommand(t *testing.T) {
	m := NewMediator()
	res := m.Dispatch(context.Background(), noopCommand{WorkerID: "w1"})
	assert.Equal(t, StatusInternal, res.Status)
}

func TestDispatchValidatesPayload(t *testing.T) {
	m := NewMediator()
	called := false
	m.Register("noop", func(ctx context.Context, cmd Command) Result {
		called = true
		return OK(nil)
	})

	res := m.Dispatch(context.Background(), noopCommand{})
	assert.Equal(t, StatusBadRequest, res.Status)
	assert.False(t, called, "invalid payload must not reach the handler")
}

func TestDispatchSerializesPerWorker(t *testing.T) {
	m := NewMediator()
	var inFlight, maxInFlight int
	var mu sync.Mutex
	m.Register("noop", func(ctx context.Context, cmd Command) Result {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return OK(nil)
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Dispatch(context.Background(), noopCommand{WorkerID: "w1"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInFlight, "same-worker commands must not overlap")
}

func TestDispatchNestedSameWorkerDoesNotDeadlock(t *testing.T) {
	m := NewMediator()
	m.Register("inner", func(ctx context.Context, cmd Command) Result {
		return OK("inner done")
	})
	m.Register("noop", func(ctx context.Context, cmd Command) Result {
		inner := noopCommand{WorkerID: cmd.(noopCommand).WorkerID}
		return m.Dispatch(ctx, renamed{inner})
	})

	done := make(chan Result, 1)
	go func() {
		done <- m.Dispatch(context.Background(), noopCommand{WorkerID: "w1"})
	}()
	select {
	case res := <-done:
		require.Equal(t, StatusOK, res.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("nested same-worker dispatch deadlocked")
	}
}

type renamed struct{ noopCommand }

func (renamed) CommandName() string { return "inner" }

func TestResultHelpers(t *testing.T) {
	assert.False(t, OK(nil).Failed())
	assert.True(t, NotFound("worker %s", "w1").Failed())
	assert.Equal(t, "worker w1", NotFound("worker %s", "w1").Message)
	assert.Equal(t, "throttled", FailedDependency("throttled", "x").ErrorKind)
}

func TestRefreshWorkerComposition(t *testing.T) {
	f := newFixture(t)
	w := f.seedWorker(t, types.WorkerStatusRunning, availableWorker)
	f.svc.labs = []types.ServiceLab{{ID: "lab-1", Title: "ospf basics", State: "STARTED"}}

	res := f.mediator.Dispatch(context.Background(), &RefreshWorker{WorkerID: w.ID})
	require.Equal(t, StatusOK, res.Status, res.Message)

	steps := res.Data.(map[string]Status)
	assert.Equal(t, StatusOK, steps["cloud_metrics"])
	assert.Equal(t, StatusOK, steps["service_data"])
	assert.Equal(t, StatusOK, steps["labs"])

	stored, err := f.store.GetWorker(w.ID)
	require.NoError(t, err)
	assert.Equal(t, "running", stored.CloudHealth.InstanceState)
	recs, err := f.store.ListLabRecordsByWorker(w.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestRefreshWorkerSkipsLabsWhenServiceDown(t *testing.T) {
	f := newFixture(t)
	w := f.seedWorker(t, types.WorkerStatusRunning, availableWorker)
	f.svc.infoErr = assert.AnError
	f.svc.healthErr = assert.AnError
	f.svc.statsErr = assert.AnError
	f.svc.licErr = assert.AnError

	res := f.mediator.Dispatch(context.Background(), &RefreshWorker{WorkerID: w.ID})
	require.Equal(t, StatusOK, res.Status)

	steps := res.Data.(map[string]Status)
	_, ranLabs := steps["labs"]
	assert.False(t, ranLabs, "labs refresh must not run against an unavailable service")
}

func TestRefreshWorkerUnknownWorker(t *testing.T) {
	f := newFixture(t)
	res := f.mediator.Dispatch(context.Background(), &RefreshWorker{WorkerID: "w-ghost"})
	assert.Equal(t, StatusNotFound, res.Status)
}
