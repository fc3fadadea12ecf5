package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/labfleet/labfleet/pkg/cloud"
	"github.com/labfleet/labfleet/pkg/domain"
	"github.com/labfleet/labfleet/pkg/service"
	"github.com/labfleet/labfleet/pkg/storage"
	"github.com/labfleet/labfleet/pkg/types"
	"github.com/stretchr/testify/require"
)

// fakeCloud is a scriptable cloud.API; zero value behaves like a healthy
// provider
type fakeCloud struct {
	mu sync.Mutex

	imageIDs  []string
	imagesErr error
	instances []types.VMFacts

	statusFn func(instanceID string) (*cloud.InstanceStatus, error)
	runFn    func(spec cloud.RunSpec) (string, error)
	utilFn   func(instanceID string) (*cloud.Utilization, error)

	startErr error
	stopErr  error
	termErr  error

	started    []string
	stopped    []string
	terminated []string
	taggedWith map[string]map[string]string
	monitored  []string
}

func notFoundErr(op string) error {
	return &cloud.Error{Kind: cloud.KindNotFound, Op: op, Err: errors.New("does not exist")}
}

func (f *fakeCloud) DescribeImageIDs(ctx context.Context, region, namePattern string) ([]string, error) {
	if f.imagesErr != nil {
		return nil, f.imagesErr
	}
	if f.imageIDs == nil {
		return []string{"ami-0abc"}, nil
	}
	return f.imageIDs, nil
}

func (f *fakeCloud) ListInstances(ctx context.Context, region string, filters map[string][]string) ([]types.VMFacts, error) {
	return f.instances, nil
}

func (f *fakeCloud) DescribeInstance(ctx context.Context, region, instanceID string) (*types.VMFacts, error) {
	for _, inst := range f.instances {
		if inst.InstanceID == instanceID {
			facts := inst
			return &facts, nil
		}
	}
	return nil, notFoundErr("describe_instance")
}

func (f *fakeCloud) DescribeStatus(ctx context.Context, region, instanceID string) (*cloud.InstanceStatus, error) {
	if f.statusFn != nil {
		return f.statusFn(instanceID)
	}
	return &cloud.InstanceStatus{InstanceState: "running", SystemStatus: "ok"}, nil
}

func (f *fakeCloud) RunInstance(ctx context.Context, region string, spec cloud.RunSpec) (string, error) {
	if f.runFn != nil {
		return f.runFn(spec)
	}
	return "i-0new", nil
}

func (f *fakeCloud) StartInstance(ctx context.Context, region, instanceID string) error {
	f.mu.Lock()
	f.started = append(f.started, instanceID)
	f.mu.Unlock()
	return f.startErr
}

func (f *fakeCloud) StopInstance(ctx context.Context, region, instanceID string) error {
	f.mu.Lock()
	f.stopped = append(f.stopped, instanceID)
	f.mu.Unlock()
	return f.stopErr
}

func (f *fakeCloud) TerminateInstance(ctx context.Context, region, instanceID string) error {
	f.mu.Lock()
	f.terminated = append(f.terminated, instanceID)
	f.mu.Unlock()
	return f.termErr
}

func (f *fakeCloud) SetTags(ctx context.Context, region, instanceID string, tags map[string]string) error {
	f.mu.Lock()
	if f.taggedWith == nil {
		f.taggedWith = map[string]map[string]string{}
	}
	f.taggedWith[instanceID] = tags
	f.mu.Unlock()
	return nil
}

func (f *fakeCloud) SetDetailedMonitoring(ctx context.Context, region, instanceID string, enabled bool) error {
	f.mu.Lock()
	f.monitored = append(f.monitored, instanceID)
	f.mu.Unlock()
	return nil
}

func (f *fakeCloud) GetUtilization(ctx context.Context, region, instanceID string, window time.Duration) (*cloud.Utilization, error) {
	if f.utilFn != nil {
		return f.utilFn(instanceID)
	}
	return &cloud.Utilization{CPUPercent: 12.5, MemoryPercent: 40}, nil
}

// fakeService is a scriptable service.API
type fakeService struct {
	info    *service.SystemInformation
	infoErr error

	health    *service.SystemHealth
	healthErr error

	stats    *service.SystemStats
	statsErr error

	licensing *service.Licensing
	licErr    error

	labs    []types.ServiceLab
	labsErr error

	deleteErr error
	deleted   []string
}

func (f *fakeService) Authenticate(ctx context.Context) error { return nil }

func (f *fakeService) GetSystemInformation(ctx context.Context) (*service.SystemInformation, error) {
	return f.info, f.infoErr
}

func (f *fakeService) GetSystemHealth(ctx context.Context) (*service.SystemHealth, error) {
	return f.health, f.healthErr
}

func (f *fakeService) GetSystemStats(ctx context.Context) (*service.SystemStats, error) {
	return f.stats, f.statsErr
}

func (f *fakeService) GetLicensing(ctx context.Context) (*service.Licensing, error) {
	return f.licensing, f.licErr
}

func (f *fakeService) ListLabs(ctx context.Context) ([]types.ServiceLab, error) {
	return f.labs, f.labsErr
}

func (f *fakeService) DeleteLab(ctx context.Context, labID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, labID)
	return nil
}

type fakeFactory struct {
	api service.API
	err error
}

func (f fakeFactory) ClientFor(worker *types.Worker) (service.API, error) {
	return f.api, f.err
}

// fakePublisher records everything the handlers publish
type fakePublisher struct {
	mu         sync.Mutex
	events     []domain.Event
	snapshots  []*types.Worker
	syncFailed []string
	labEvents  []domain.LabEvent
}

func (p *fakePublisher) PublishWorkerEvents(workerID string, events []domain.Event) {
	p.mu.Lock()
	p.events = append(p.events, events...)
	p.mu.Unlock()
}

func (p *fakePublisher) PublishSnapshot(w *types.Worker) {
	p.mu.Lock()
	p.snapshots = append(p.snapshots, w)
	p.mu.Unlock()
}

func (p *fakePublisher) PublishSyncFailed(workerID, syncKind, message string) {
	p.mu.Lock()
	p.syncFailed = append(p.syncFailed, syncKind)
	p.mu.Unlock()
}

func (p *fakePublisher) PublishLabEvent(e domain.LabEvent) {
	p.mu.Lock()
	p.labEvents = append(p.labEvents, e)
	p.mu.Unlock()
}

func (p *fakePublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = string(e.Type())
	}
	return out
}

func (p *fakePublisher) labEventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.labEvents))
	for i, e := range p.labEvents {
		out[i] = string(e.Kind)
	}
	return out
}

type fixture struct {
	mediator *Mediator
	store    storage.Store
	cloud    *fakeCloud
	svc      *fakeService
	pub      *fakePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		mediator: NewMediator(),
		store:    store,
		cloud:    &fakeCloud{},
		svc:      &fakeService{},
		pub:      &fakePublisher{},
	}
	NewHandlers(f.mediator, store, f.cloud, fakeFactory{api: f.svc}, f.pub, Settings{
		IdleWindow:        time.Hour,
		UtilizationWindow: 10 * time.Minute,
	})
	return f
}

// seedWorker persists a worker in a given lifecycle status
func (f *fixture) seedWorker(t *testing.T, status types.WorkerStatus, mutate ...func(*types.Worker)) *types.Worker {
	t.Helper()
	w := &types.Worker{
		ID:              "w-" + string(status),
		Name:            "lab-host",
		Region:          "us-east-1",
		CloudInstanceID: "i-0seed",
		PublicAddress:   "198.51.100.10",
		Status:          status,
		CreatedAt:       time.Now().Add(-24 * time.Hour),
		Service:         types.ServiceState{Status: types.ServiceStatusUnknown},
	}
	for _, m := range mutate {
		m(w)
	}
	require.NoError(t, f.store.SaveWorker(w))
	return w
}
