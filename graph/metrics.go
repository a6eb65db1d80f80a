// Package graph provides a typed workflow engine: nodes produce partial updates,
// a reducer merges them into the run state, and edges or routing functions pick
// the next node until a node stops the run.
package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects engine metrics for Prometheus.
//
// Metrics exposed (namespace configurable, "ragflow" by default):
//
//  1. inflight_runs (gauge): runs currently executing.
//  2. step_latency_ms (histogram): node execution time. Labels: node_id, status.
//  3. steps_total (counter): node executions. Labels: node_id, status.
//  4. run_latency_ms (histogram): whole-run duration. Labels: status.
//  5. runs_total (counter): finished runs. Labels: status.
//
// Status values are "success", "error" and "timeout" for steps, and "success",
// "error", "cancelled" and "max_steps" for runs. Run IDs are deliberately not
// used as labels.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry, "ragflow")
//	engine := graph.New(reduce, st, emitter, graph.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type PrometheusMetrics struct {
	inflightRuns prometheus.Gauge
	stepLatency  *prometheus.HistogramVec
	steps        *prometheus.CounterVec
	runLatency   *prometheus.HistogramVec
	runs         *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers the engine metrics with registry.
// A nil registry uses prometheus.DefaultRegisterer; an empty namespace uses
// "ragflow".
func NewPrometheusMetrics(registry prometheus.Registerer, namespace string) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "ragflow"
	}

	factory := promauto.With(registry)

	return &PrometheusMetrics{
		enabled: true,
		inflightRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_runs",
			Help:      "Number of workflow runs currently executing",
		}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_latency_ms",
			Help:      "Node execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
		}, []string{"node_id", "status"}),
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Node executions by outcome",
		}, []string{"node_id", "status"}),
		runLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_latency_ms",
			Help:      "Workflow run duration in milliseconds",
			Buckets:   []float64{10, 50, 100, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"status"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished workflow runs by outcome",
		}, []string{"status"}),
	}
}

func (pm *PrometheusMetrics) isEnabled() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// RecordStep records one node execution.
func (pm *PrometheusMetrics) RecordStep(nodeID string, latency time.Duration, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.stepLatency.WithLabelValues(nodeID, status).Observe(float64(latency.Milliseconds()))
	pm.steps.WithLabelValues(nodeID, status).Inc()
}

// RunStarted increments the in-flight gauge.
func (pm *PrometheusMetrics) RunStarted() {
	if !pm.isEnabled() {
		return
	}
	pm.inflightRuns.Inc()
}

// RunFinished decrements the in-flight gauge and records the run outcome.
func (pm *PrometheusMetrics) RunFinished(latency time.Duration, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.inflightRuns.Dec()
	pm.runLatency.WithLabelValues(status).Observe(float64(latency.Milliseconds()))
	pm.runs.WithLabelValues(status).Inc()
}

// Disable stops metric recording (useful for testing).
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}
