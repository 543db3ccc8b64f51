// Package metrics holds the Prometheus collectors shared by the pipeline,
// the runner and the storage backends.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ticks counts coupling ticks by policy variant.
	Ticks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trichter_ticks_total",
		Help: "Total coupling ticks by policy",
	}, []string{"policy"})

	// GateDecisions counts gate outcomes.
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trichter_gate_decisions_total",
		Help: "Total gate decisions by action",
	}, []string{"action"})

	// Commits counts chain commits by result.
	Commits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trichter_commits_total",
		Help: "Total hash chain commits by result",
	}, []string{"result"})

	// FunnelNodes tracks the node count after each tick.
	FunnelNodes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trichter_funnel_nodes",
		Help:    "Funnel node count observed after each tick",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 500, 1000},
	})

	// Runs counts independent runs by outcome.
	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trichter_runs_total",
		Help: "Total pipeline runs by outcome",
	}, []string{"outcome"})

	// RunDuration tracks end-to-end run latency.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trichter_run_duration_seconds",
		Help:    "Pipeline run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	// StorageWrites counts backend writes by backend type and result.
	StorageWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trichter_storage_writes_total",
		Help: "Total storage writes by backend and result",
	}, []string{"backend", "result"})
)

// Result label values.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultTimeout = "timeout"
)
