package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet metrics
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "labfleet_workers_total",
			Help: "Total number of workers by status",
		},
		[]string{"status"},
	)

	LabsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "labfleet_labs_total",
			Help: "Total number of tracked lab records",
		},
	)

	// Scheduler metrics
	JobTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labfleet_job_ticks_total",
			Help: "Total scheduler job ticks by job",
		},
		[]string{"job"},
	)

	JobTickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "labfleet_job_tick_duration_seconds",
			Help:    "Duration of scheduler job ticks",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	JobWorkersProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labfleet_job_workers_processed_total",
			Help: "Workers processed per job tick outcome",
		},
		[]string{"job", "outcome"},
	)

	// Command metrics
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labfleet_commands_total",
			Help: "Commands dispatched by name and result status",
		},
		[]string{"command", "status"},
	)

	// Adapter metrics
	CloudCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labfleet_cloud_calls_total",
			Help: "Cloud adapter calls by operation and result kind",
		},
		[]string{"op", "result"},
	)

	ServiceCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labfleet_service_calls_total",
			Help: "Service API calls by operation and result kind",
		},
		[]string{"op", "result"},
	)

	// Event bus metrics
	EventSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "labfleet_event_subscribers",
			Help: "Number of active event stream subscribers",
		},
	)

	EventsPublishedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "labfleet_events_published_total",
			Help: "Total envelopes published to the event bus",
		},
	)

	EventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "labfleet_events_dropped_total",
			Help: "Envelopes dropped due to subscriber backpressure",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labfleet_api_requests_total",
			Help: "API requests by method, path and status code",
		},
		[]string{"method", "path", "code"},
	)
)

func init() {
	prometheus.MustRegister(
		WorkersTotal,
		LabsTotal,
		JobTicksTotal,
		JobTickDuration,
		JobWorkersProcessed,
		CommandsTotal,
		CloudCallsTotal,
		ServiceCallsTotal,
		EventSubscribers,
		EventsPublishedTotal,
		EventsDroppedTotal,
		APIRequestsTotal,
	)
}

// Handler returns the HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
