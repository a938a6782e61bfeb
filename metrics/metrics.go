// Package metrics exposes Prometheus instruments for routing decisions,
// ingestion and the worker loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	gatherer prometheus.Gatherer

	RoutingDecisions *prometheus.CounterVec
	GenerateDuration prometheus.Histogram
	FinalConfidence  prometheus.Histogram
	RetrievalTiers   *prometheus.CounterVec
	IngestRuns       *prometheus.CounterVec
	IngestDuration   prometheus.Histogram
	IngestedChunks   prometheus.Counter
	WorkerJobs       *prometheus.CounterVec
	ProviderFailures *prometheus.CounterVec
}

// New registers every collector on reg. Pass prometheus.NewRegistry() in
// tests so repeated construction does not collide.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		RoutingDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "supportdesk_routing_decisions_total",
			Help: "Ticket routing outcomes by outcome tag",
		}, []string{"outcome"}),
		GenerateDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "supportdesk_generate_duration_seconds",
			Help:    "Ticket generation latency",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		FinalConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "supportdesk_final_confidence",
			Help:    "Final blended confidence of generated drafts",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		RetrievalTiers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "supportdesk_retrieval_tier_total",
			Help: "Retrieval tier per query",
		}, []string{"tier"}),
		IngestRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "supportdesk_ingest_runs_total",
			Help: "Ingestion runs by terminal document status",
		}, []string{"status"}),
		IngestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "supportdesk_ingest_duration_seconds",
			Help:    "Document ingestion latency",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		IngestedChunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "supportdesk_ingested_chunks_total",
			Help: "Chunks embedded and stored",
		}),
		WorkerJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "supportdesk_worker_jobs_total",
			Help: "Ingest jobs processed by the worker loop",
		}, []string{"result"}),
		ProviderFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "supportdesk_provider_failures_total",
			Help: "Failed calls to external model providers",
		}, []string{"provider"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRouting(outcome string, confidence *float64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RoutingDecisions.WithLabelValues(outcome).Inc()
	m.GenerateDuration.Observe(elapsed.Seconds())
	if confidence != nil {
		m.FinalConfidence.Observe(*confidence)
	}
}

func (m *Metrics) ObserveTier(tier string) {
	if m == nil {
		return
	}
	m.RetrievalTiers.WithLabelValues(tier).Inc()
}

func (m *Metrics) ObserveIngest(status string, chunks int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.IngestRuns.WithLabelValues(status).Inc()
	m.IngestDuration.Observe(elapsed.Seconds())
	if chunks > 0 {
		m.IngestedChunks.Add(float64(chunks))
	}
}

func (m *Metrics) ObserveWorkerJob(result string) {
	if m == nil {
		return
	}
	m.WorkerJobs.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveProviderFailure(provider string) {
	if m == nil {
		return
	}
	m.ProviderFailures.WithLabelValues(provider).Inc()
}
