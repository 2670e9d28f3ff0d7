// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK         = "ok"
	OutcomeError      = "error"
	OutcomeSuperseded = "superseded"
)

// Superseded result kinds.
const (
	KindHandle   = "handle"
	KindProgress = "progress"
	KindLoadErr  = "load_error"
	KindChunk    = "chunk"
	KindFinal    = "final"
	KindGenErr   = "generation_error"
)

// =============================================================================
// METRICS
// =============================================================================

// Metrics records load and generation outcomes. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	loads       *prometheus.CounterVec
	loadSeconds prometheus.Histogram
	generations *prometheus.CounterVec
	superseded  *prometheus.CounterVec
}

// NewMetrics creates metrics on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rigchat",
			Name:      "model_loads_total",
			Help:      "Model load attempts by outcome",
		}, []string{"outcome"}),
		loadSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rigchat",
			Name:      "model_load_seconds",
			Help:      "Time from model selection until the load settled",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rigchat",
			Name:      "generations_total",
			Help:      "Generation attempts by outcome",
		}, []string{"outcome"}),
		superseded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rigchat",
			Name:      "superseded_results_total",
			Help:      "Asynchronous results discarded because their epoch was stale",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(m.loads, m.loadSeconds, m.generations, m.superseded)
	return m
}

// LoadSettled records how a load attempt ended.
func (m *Metrics) LoadSettled(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(outcome).Inc()
	m.loadSeconds.Observe(elapsed.Seconds())
}

// GenerationSettled records how a generation attempt ended.
func (m *Metrics) GenerationSettled(outcome string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(outcome).Inc()
}

// Superseded counts one discarded result.
func (m *Metrics) Superseded(kind string) {
	if m == nil {
		return
	}
	m.superseded.WithLabelValues(kind).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// =============================================================================
// TEST HELPERS
// =============================================================================

// Loads returns the current load counter for outcome.
func (m *Metrics) Loads(outcome string) prometheus.Counter {
	return m.loads.WithLabelValues(outcome)
}

// Generations returns the current generation counter for outcome.
func (m *Metrics) Generations(outcome string) prometheus.Counter {
	return m.generations.WithLabelValues(outcome)
}

// SupersededCount returns the counter for kind.
func (m *Metrics) SupersededCount(kind string) prometheus.Counter {
	return m.superseded.WithLabelValues(kind)
}
