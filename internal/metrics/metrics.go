// Package metrics exposes step and job counters for Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattjoyce/taskengine/internal/engine"
)

// Metrics is an engine.ResultSink counting step outcomes. Job-level figures
// are recorded by the worker through JobFinished.
type Metrics struct {
	registry *prometheus.Registry

	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	jobs         *prometheus.CounterVec
	jobDuration  prometheus.Histogram
	inFlight     prometheus.Gauge
}

var _ engine.ResultSink = (*Metrics)(nil)

// New registers the collectors on a fresh registry, alongside the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskengine_steps_total",
			Help: "Steps that reached a final status, by task and status.",
		}, []string{"task", "status"}),
		stepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskengine_step_duration_seconds",
			Help:    "Wall time of executed steps.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 10),
		}, []string{"task"}),
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskengine_jobs_total",
			Help: "Jobs completed by the worker, by status.",
		}, []string{"status"}),
		jobDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskengine_job_duration_seconds",
			Help:    "Wall time of completed jobs.",
			Buckets: prometheus.ExponentialBuckets(0.05, 4, 10),
		}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "taskengine_jobs_in_flight",
			Help: "Jobs currently executing in this worker.",
		}),
	}
}

// StepFinished implements engine.ResultSink.
func (m *Metrics) StepFinished(_ context.Context, r engine.StepReport) error {
	m.steps.WithLabelValues(r.Task, string(r.Status)).Inc()
	if d := r.Duration(); d > 0 {
		m.stepDuration.WithLabelValues(r.Task).Observe(d.Seconds())
	}
	return nil
}

// JobStarted marks a job in flight.
func (m *Metrics) JobStarted() {
	m.inFlight.Inc()
}

// JobFinished records a completed job.
func (m *Metrics) JobFinished(status string, d time.Duration) {
	m.inFlight.Dec()
	m.jobs.WithLabelValues(status).Inc()
	m.jobDuration.Observe(d.Seconds())
}

// Handler serves /metrics and /healthz.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry}))
	return mux
}
