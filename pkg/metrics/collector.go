package metrics

import (
	"time"

	"github.com/labfleet/labfleet/pkg/storage"
	"github.com/labfleet/labfleet/pkg/types"
)

// Collector periodically refreshes the fleet gauges from the store
type Collector struct {
	store  storage.Store
	stopCh chan struct{}
}

// NewCollector creates a new fleet metrics collector
func NewCollector(store storage.Store) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectWorkers()
	c.collectLabs()
}

func (c *Collector) collectWorkers() {
	workers, err := c.store.ListWorkers()
	if err != nil {
		return
	}

	counts := make(map[types.WorkerStatus]int)
	for _, w := range workers {
		counts[w.Status]++
	}
	for _, status := range []types.WorkerStatus{
		types.WorkerStatusPending, types.WorkerStatusProvisioned,
		types.WorkerStatusRunning, types.WorkerStatusStopping,
		types.WorkerStatusStopped, types.WorkerStatusStarting,
		types.WorkerStatusTerminating, types.WorkerStatusTerminated,
		types.WorkerStatusFailed, types.WorkerStatusImported,
	} {
		WorkersTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func (c *Collector) collectLabs() {
	labs, err := c.store.ListLabRecords()
	if err != nil {
		return
	}
	LabsTotal.Set(float64(len(labs)))
}
