// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the service registers. One instance
// per process, wired into the coordinator, tracker and orchestrator at
// startup.
type Metrics struct {
	registry *prometheus.Registry

	JobsTotal           *prometheus.CounterVec
	JobDuration         prometheus.Histogram
	ProviderCalls       *prometheus.CounterVec
	ProviderLatency     *prometheus.HistogramVec
	CircuitTransitions  *prometheus.CounterVec
	ConsensusAgreement  prometheus.Histogram
	ReviewDecisions     *prometheus.CounterVec
	QueueDepth          prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "extractd_jobs_total",
			Help: "Jobs reaching a terminal state, by state and failure reason.",
		}, []string{"state", "reason"}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "extractd_job_duration_seconds",
			Help:    "Wall time from submission to terminal state.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		ProviderCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "extractd_provider_calls_total",
			Help: "Provider extraction calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		ProviderLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "extractd_provider_latency_seconds",
			Help:    "Provider call latency by provider.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"provider"}),
		CircuitTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "extractd_circuit_transitions_total",
			Help: "Circuit breaker state transitions by provider and target state.",
		}, []string{"provider", "to"}),
		ConsensusAgreement: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "extractd_consensus_agreement",
			Help:    "Per-job mean agreement across critical fields.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ReviewDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "extractd_review_decisions_total",
			Help: "Routing decisions by outcome.",
		}, []string{"decision"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "extractd_queue_depth",
			Help: "Jobs waiting for a worker.",
		}),
	}
}

// Handler serves the /metrics endpoint for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
