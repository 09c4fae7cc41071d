// Package metrics provides Prometheus metrics for the pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "transcript_insights"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	registry prometheus.Gatherer

	JobsTotal           *prometheus.CounterVec
	JobsActive          prometheus.Gauge
	SectionsTotal       *prometheus.CounterVec
	StageDuration       *prometheus.HistogramVec
	ExternalCallRetries *prometheus.CounterVec
	EventsPublished     *prometheus.CounterVec
}

// New registers every metric on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		JobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Pipeline runs by terminal status",
		}, []string{"status"}),
		JobsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Pipeline runs currently in progress",
		}),
		SectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sections_total",
			Help:      "Processed sections by outcome",
		}, []string{"outcome"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 180, 600},
		}, []string{"stage"}),
		ExternalCallRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_call_retries_total",
			Help:      "Retried external calls by operation",
		}, []string{"op"}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Job lifecycle events by type and result",
		}, []string{"type", "result"}),
	}
}

// NewDefault registers on a fresh registry that also carries the Go and
// process collectors.
func NewDefault() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return New(reg)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordJobStart() { m.JobsActive.Inc() }

// RecordJobEnd records a run reaching a terminal status.
func (m *Metrics) RecordJobEnd(status string) {
	m.JobsActive.Dec()
	m.JobsTotal.WithLabelValues(status).Inc()
}

// RecordJobSkipped counts a run that never claimed its job.
func (m *Metrics) RecordJobSkipped() {
	m.JobsTotal.WithLabelValues("skipped").Inc()
}

func (m *Metrics) RecordSection(outcome string) {
	m.SectionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordStage(stage string, seconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

func (m *Metrics) RecordRetry(op string) {
	m.ExternalCallRetries.WithLabelValues(op).Inc()
}

func (m *Metrics) RecordEvent(eventType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.EventsPublished.WithLabelValues(eventType, result).Inc()
}
