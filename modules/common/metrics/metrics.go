package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "genstudio",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "genstudio",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
		},
		[]string{"method", "route"},
	)

	// Generation
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "genstudio",
			Subsystem: "generation",
			Name:      "tasks_total",
			Help:      "Generation tasks by model and terminal status",
		},
		[]string{"model", "status"},
	)

	PollAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "genstudio",
			Subsystem: "generation",
			Name:      "poll_attempts_total",
			Help:      "Status queries issued against the vendor",
		},
		[]string{"kind"},
	)

	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "genstudio",
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Requests sent to generation vendors",
		},
		[]string{"provider", "operation", "status"},
	)

	WorkerInflight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "genstudio",
			Subsystem: "generation",
			Name:      "worker_inflight",
			Help:      "Generation tasks currently processed by the queue worker",
		},
	)

	// Storage
	RelocatedBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "genstudio",
			Subsystem: "storage",
			Name:      "relocated_bytes_total",
			Help:      "Bytes copied into permanent object storage",
		},
		[]string{"category"},
	)

	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "genstudio",
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Object storage operations",
		},
		[]string{"backend", "operation", "status"},
	)

	StorageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "genstudio",
			Subsystem: "storage",
			Name:      "duration_seconds",
			Help:      "Object storage operation duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 15},
		},
		[]string{"backend", "operation"},
	)

	// Websocket
	ProgressSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "genstudio",
			Subsystem: "progress",
			Name:      "subscribers",
			Help:      "Open task progress websocket connections",
		},
	)
)

// RecordRequest records an HTTP request.
func RecordRequest(method, route, status string, duration time.Duration) {
	RequestsTotal.WithLabelValues(method, route, status).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordGeneration records a task reaching a terminal status.
func RecordGeneration(model, status string) {
	GenerationsTotal.WithLabelValues(model, status).Inc()
}

// RecordPollAttempt records one status query.
func RecordPollAttempt(kind string) {
	PollAttemptsTotal.WithLabelValues(kind).Inc()
}

// RecordUpstream records one vendor call.
func RecordUpstream(provider, operation, status string) {
	UpstreamRequestsTotal.WithLabelValues(provider, operation, status).Inc()
}

// RecordStorage records an object storage operation.
func RecordStorage(backend, operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StorageOperationsTotal.WithLabelValues(backend, operation, status).Inc()
	StorageDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordRelocation records bytes copied into storage.
func RecordRelocation(category string, size int64) {
	RelocatedBytesTotal.WithLabelValues(category).Add(float64(size))
}
