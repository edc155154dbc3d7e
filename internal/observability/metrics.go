// Package observability exposes the process's Prometheus metrics.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors updated by the job and stream services.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	jobsAdmitted    prometheus.Counter
	jobsFinished    *prometheus.CounterVec
	phaseDuration   *prometheus.HistogramVec
	activeStreams   prometheus.Gauge
	streamEvents    *prometheus.CounterVec
	streamsRejected prometheus.Counter
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		jobsAdmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "skywatch_jobs_admitted_total",
			Help: "Total analysis jobs admitted",
		}),
		jobsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skywatch_jobs_finished_total",
			Help: "Total analysis jobs finished by outcome",
		}, []string{"outcome"}),
		phaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "skywatch_phase_duration_seconds",
			Help:    "Analysis phase duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17m
		}, []string{"phase", "result"}),
		activeStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "skywatch_log_streams_active",
			Help: "Log streams currently open",
		}),
		streamEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skywatch_log_stream_events_total",
			Help: "Log stream events emitted by type",
		}, []string{"type"}),
		streamsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "skywatch_log_streams_rejected_total",
			Help: "Log streams refused because the stream cap was reached",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) JobAdmitted() {
	if m == nil {
		return
	}
	m.jobsAdmitted.Inc()
}

func (m *Metrics) JobFinished(outcome string) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePhase(phase, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase, result).Observe(d.Seconds())
}

func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.activeStreams.Inc()
}

func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.activeStreams.Dec()
}

func (m *Metrics) StreamEvent(eventType string) {
	if m == nil {
		return
	}
	m.streamEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) StreamRejected() {
	if m == nil {
		return
	}
	m.streamsRejected.Inc()
}
