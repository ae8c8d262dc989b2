package metrics

import (
	"github.com/livepeer/clip-job-server/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ClipMetrics carries the ambient observability named in the domain stack:
// jobs-in-flight, per-stage duration, selector-strategy usage and HTTP
// request volume. No live dashboard is implied or required.
type ClipMetrics struct {
	Version prometheus.Counter

	JobsInFlight         prometheus.Gauge
	HTTPRequestsInFlight prometheus.Gauge

	StageDurationSec *prometheus.HistogramVec
	StageFailures    *prometheus.CounterVec

	SelectorStrategy *prometheus.CounterVec

	JobsCompleted *prometheus.CounterVec
}

func NewMetrics() *ClipMetrics {
	m := &ClipMetrics{
		Version: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "version",
			Help:        "Fired once on startup to record which build is running.",
			ConstLabels: prometheus.Labels{"version": config.Version, "commit": config.Commit},
		}),

		JobsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "jobs_in_flight",
			Help: "Current count of jobs with status=running.",
		}),
		HTTPRequestsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current count of in-flight HTTP requests.",
		}),

		StageDurationSec: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stage_duration_seconds",
			Help:    "Time taken by each pipeline stage (fetch, transcribe, select, render, upload).",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"stage"}),
		StageFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stage_failures_total",
			Help: "Count of stage-local failures by stage and error kind.",
		}, []string{"stage", "kind"}),

		SelectorStrategy: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "selector_strategy_total",
			Help: "Count of Jobs completed by each Selector strategy (llm, rule, fallback).",
		}, []string{"strategy"}),

		JobsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Count of Jobs reaching a terminal status.",
		}, []string{"status"}),
	}

	m.Version.Inc()

	return m
}

var Metrics = NewMetrics()
