// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradebox_executions_total",
			Help: "Total number of execution requests by terminal status",
		},
		[]string{"language", "status"},
	)

	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gradebox_phase_duration_seconds",
			Help:    "Duration of each execution phase",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"language", "phase"}, // phase: "compile", "run", "total"
	)

	ContainerStops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradebox_container_stops_total",
			Help: "Out-of-band stops of timed-out containers",
		},
		[]string{"result"}, // "ok" or "error"
	)

	ActiveExecutions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gradebox_active_executions",
			Help: "Number of requests currently being executed",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gradebox_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)
