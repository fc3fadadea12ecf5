package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labfleet/labfleet/pkg/command"
	"github.com/labfleet/labfleet/pkg/events"
	"github.com/labfleet/labfleet/pkg/storage"
	"github.com/labfleet/labfleet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubThrottle struct {
	claims  []string
	allowed bool
}

func (s *stubThrottle) Claim(kind, workerID string) bool {
	s.claims = append(s.claims, kind+"/"+workerID)
	return s.allowed
}

type testServer struct {
	srv      *Server
	store    storage.Store
	mediator *command.Mediator
	broker   *events.Broker
	throttle *stubThrottle
}

func newTestServer(t *testing.T, auth TokenValidator) *testServer {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	broker := events.NewBroker(16)
	broker.Start()
	t.Cleanup(broker.Stop)

	ts := &testServer{
		store:    store,
		mediator: command.NewMediator(),
		broker:   broker,
		throttle: &stubThrottle{allowed: true},
	}
	ts.srv = NewServer(store, ts.mediator, broker, ts.throttle, Options{
		Auth:      auth,
		Heartbeat: 50 * time.Millisecond,
	})
	return ts
}

// register installs a stub handler returning a fixed result
func (ts *testServer) register(name string, res command.Result) *command.Command {
	var got command.Command
	ts.mediator.Register(name, func(ctx context.Context, cmd command.Command) command.Result {
		got = cmd
		return res
	})
	return &got
}

func (ts *testServer) do(t *testing.T, method, path, token string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, StaticTokens{Token: "secret", AdminToken: "root"})

	rec := ts.do(t, http.MethodGet, "/api/v1/workers", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/workers", "wrong", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/workers", "secret", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthEndpointsUnauthenticated(t *testing.T) {
	ts := newTestServer(t, StaticTokens{Token: "secret"})
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/readyz", "", "").Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/metrics", "", "").Code)
}

func TestIdleDetectionRequiresAdmin(t *testing.T) {
	ts := newTestServer(t, StaticTokens{Token: "secret", AdminToken: "root"})
	captured := ts.register(command.NameSetIdleDetection, command.OK(nil))

	rec := ts.do(t, http.MethodPost, "/api/v1/workers/region/us-east-1/workers/w1/idle-detection/enable", "secret", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, *captured)

	rec = ts.do(t, http.MethodPost, "/api/v1/workers/region/us-east-1/workers/w1/idle-detection/enable", "root", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	cmd := (*captured).(*command.SetIdleDetection)
	assert.Equal(t, "w1", cmd.WorkerID)
	assert.True(t, cmd.Enabled)
}

func TestCreateWorkerRoute(t *testing.T) {
	ts := newTestServer(t, StaticTokens{})
	worker := &types.Worker{ID: "w-new", Region: "eu-west-1", Status: types.WorkerStatusProvisioned}
	captured := ts.register(command.NameCreateWorker, command.OK(worker))

	rec := ts.do(t, http.MethodPost, "/api/v1/workers/region/eu-west-1/workers", "",
		`{"name":"lab-host","instance_type":"m5.xlarge","image_id":"ami-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	cmd := (*captured).(*command.CreateWorker)
	assert.Equal(t, "eu-west-1", cmd.Region, "region comes from the path")
	assert.Equal(t, "lab-host", cmd.Name)

	var got types.Worker
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "w-new", got.ID)
}

func TestResultStatusMapping(t *testing.T) {
	tests := []struct {
		res  command.Result
		code int
	}{
		{command.BadRequest("bad"), http.StatusBadRequest},
		{command.NotFound("missing"), http.StatusNotFound},
		{command.Conflict("busy"), http.StatusConflict},
		{command.FailedDependency("throttled", "cloud says no"), http.StatusFailedDependency},
		{command.Internal(assert.AnError), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.res.Status), func(t *testing.T) {
			ts := newTestServer(t, StaticTokens{})
			ts.register(command.NameStartWorker, tt.res)
			rec := ts.do(t, http.MethodPost, "/api/v1/workers/region/us-east-1/workers/w1/start", "", "")
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestTerminateReturnsAccepted(t *testing.T) {
	ts := newTestServer(t, StaticTokens{})
	ts.register(command.NameTerminateWorker, command.OK(nil))
	rec := ts.do(t, http.MethodDelete, "/api/v1/workers/region/us-east-1/workers/w1", "", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestManualRefreshThrottled(t *testing.T) {
	ts := newTestServer(t, StaticTokens{})
	ts.register(command.NameRefreshWorker, command.OK(nil))

	rec := ts.do(t, http.MethodPost, "/api/v1/workers/region/us-east-1/workers/w1/refresh", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.throttle.allowed = false
	rec = ts.do(t, http.MethodPost, "/api/v1/workers/region/us-east-1/workers/w1/refresh", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, []string{"refresh/w1", "refresh/w1"}, ts.throttle.claims)
}

func TestWorkerProjections(t *testing.T) {
	ts := newTestServer(t, StaticTokens{})
	worker := &types.Worker{
		ID: "w1", Region: "us-east-1", Status: types.WorkerStatusRunning,
		Service: types.ServiceState{Status: types.ServiceStatusAvailable, LabsCount: 1},
	}
	require.NoError(t, ts.store.SaveWorker(worker))
	require.NoError(t, ts.store.SaveLabRecord(&types.LabRecord{
		ID: "r1", WorkerID: "w1", LabID: "lab-1", Title: "ospf", State: "STARTED",
	}))

	rec := ts.do(t, http.MethodGet, "/api/v1/workers/region/us-east-1/workers/w1/status", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running"`)

	rec = ts.do(t, http.MethodGet, "/api/v1/workers/region/us-east-1/workers/w1/labs", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var labs []types.LabRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &labs))
	require.Len(t, labs, 1)
	assert.Equal(t, "lab-1", labs[0].LabID)

	rec = ts.do(t, http.MethodGet, "/api/v1/workers/region/us-east-1/workers/w-ghost/labs", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListWorkersFiltersByRegion(t *testing.T) {
	ts := newTestServer(t, StaticTokens{})
	require.NoError(t, ts.store.SaveWorker(&types.Worker{ID: "w1", Region: "us-east-1", Status: types.WorkerStatusRunning}))
	require.NoError(t, ts.store.SaveWorker(&types.Worker{ID: "w2", Region: "eu-west-1", Status: types.WorkerStatusRunning}))

	rec := ts.do(t, http.MethodGet, "/api/v1/workers/region/eu-west-1/workers", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var workers []types.Worker
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &workers))
	require.Len(t, workers, 1)
	assert.Equal(t, "w2", workers[0].ID)
}

func TestEventStreamDeliversEnvelopes(t *testing.T) {
	ts := newTestServer(t, StaticTokens{})
	httpSrv := httptest.NewServer(ts.srv.Handler())
	defer httpSrv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpSrv.URL+"/api/v1/events/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ts.broker.Publish(events.NewEnvelope("worker.snapshot", "labfleet", time.Now(), map[string]string{"id": "w1"}))
			}
		}
	}()

	scanner := bufio.NewScanner(resp.Body)
	var dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			dataLine = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	require.NotEmpty(t, dataLine, "no envelope received on the stream")

	var env events.Envelope
	require.NoError(t, json.Unmarshal([]byte(dataLine), &env))
	assert.Equal(t, "worker.snapshot", env.Type)
	assert.Equal(t, "labfleet", env.Source)
}
