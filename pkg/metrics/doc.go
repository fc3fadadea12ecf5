// Package metrics exposes labfleet's prometheus instrumentation: fleet
// gauges refreshed by the Collector, plus counters and histograms updated
// inline by the scheduler, mediator, adapters, and event bus.
package metrics
