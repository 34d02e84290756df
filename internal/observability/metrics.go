package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Outbound platform API metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platform_api_request_duration_seconds",
			Help:    "Platform API request latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_api_requests_total",
			Help: "Total number of platform API requests",
		},
		[]string{"method", "path", "status"},
	)

	// Session metrics
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_token_refreshes_total",
			Help: "Total number of token refresh attempts",
		},
		[]string{"result"},
	)

	SessionAuthenticated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "session_authenticated",
			Help: "Whether the agent currently holds an authenticated session (0 or 1)",
		},
	)

	// Experiment tracker metrics
	TrackerTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "experiment_tracker_ticks_total",
			Help: "Total number of tracker check passes started",
		},
	)

	TrackerFetchFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "experiment_tracker_fetch_failures_total",
			Help: "Total number of tracker passes aborted because the experiment list fetch failed",
		},
	)

	ExperimentsCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "experiments_completed_total",
			Help: "Total number of experiments the tracker promoted to completed",
		},
	)

	ExperimentUpdateFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "experiment_update_failures_total",
			Help: "Total number of failed experiment status transitions",
		},
	)

	// Admin HTTP surface metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Admin HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of admin HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)
