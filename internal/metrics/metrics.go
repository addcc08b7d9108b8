// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Inspections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inspection_requests_total",
			Help: "Prompt inspections by outcome (allowed, blocked, error, not_ready)",
		},
		[]string{"outcome"},
	)

	InspectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inspection_duration_seconds",
			Help:    "End-to-end prompt inspection latency",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	DetectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inspection_detector_duration_seconds",
			Help:    "Per-detector latency",
			Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
		[]string{"detector"},
	)

	DetectorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inspection_detector_errors_total",
			Help: "Detector failures, including recovered panics",
		},
		[]string{"detector"},
	)

	Findings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inspection_findings_total",
			Help: "Findings emitted after deduplication",
		},
		[]string{"category", "severity"},
	)

	LifecycleState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inspection_lifecycle_state",
			Help: "Warmup state: 0 not_started, 1 loading, 2 building_detectors, 3 ready, 4 failed",
		},
	)

	InFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inspection_in_flight",
			Help: "Inspections currently holding a worker slot",
		},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inspection_events_dropped_total",
			Help: "Inspection events dropped because the writer buffer was full",
		},
	)
)
