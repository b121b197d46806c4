package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan session metrics
var (
	// ScanSessionsTotal tracks finished scan sessions by outcome
	ScanSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_sessions_total",
			Help: "Total number of scan sessions by outcome",
		},
		[]string{"outcome"},
	)

	// ScanSessionDuration tracks wall time of scan sessions
	ScanSessionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scan_session_duration_seconds",
			Help:    "Scan session duration in seconds",
			Buckets: []float64{5, 15, 30, 60, 120, 240, 360, 500, 900},
		},
	)

	// ScanSessionActive is 1 while a session drives the scanner UI
	ScanSessionActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scan_session_active",
			Help: "Whether a scan session is currently active",
		},
	)

	// ScanSignalsTotal tracks pause/stop requests and whether they were accepted
	ScanSignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_signals_total",
			Help: "Total number of pause/stop signals by result",
		},
		[]string{"signal", "result"},
	)
)

// Bridge metrics
var (
	// BridgeJobsSubmitted tracks accepted job submissions
	BridgeJobsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_jobs_submitted_total",
			Help: "Total number of bridge jobs submitted",
		},
	)

	// BridgeJobsClaimed tracks jobs handed to workers
	BridgeJobsClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_jobs_claimed_total",
			Help: "Total number of bridge jobs claimed",
		},
	)

	// BridgeJobsCompleted tracks completion reports by resulting state
	BridgeJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_jobs_completed_total",
			Help: "Total number of bridge job completion reports by state",
		},
		[]string{"state"},
	)

	// WorkerJobsProcessed tracks jobs executed by this worker process
	WorkerJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_worker_jobs_processed_total",
			Help: "Total number of bridge jobs processed by result",
		},
		[]string{"result"},
	)
)

// HTTP metrics
var (
	// HTTPRequestsTotal tracks served requests by route pattern and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks request latency by route pattern
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
