package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "tspanneal"

// Metrics holds the Prometheus collectors of one server.
// Each instance owns its registry so several servers can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	JobsCreated  prometheus.Counter
	JobsFinished *prometheus.CounterVec
	JobsRunning  prometheus.Gauge
	JobDuration  prometheus.Histogram
	Iterations   prometheus.Counter
	Checkpoints  prometheus.Counter
}

// NewMetrics creates and registers the server collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		JobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "jobs_created_total",
			Help:      "Total number of optimization jobs created",
		}),
		JobsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "jobs_finished_total",
				Help:      "Total number of jobs that reached a terminal state",
			},
			[]string{"state"},
		),
		JobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "jobs_running",
			Help:      "Number of jobs currently annealing",
		}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of finished jobs",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		Iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "anneal_iterations_total",
			Help:      "Annealing iterations performed across all jobs and restarts",
		}),
		Checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "checkpoints_saved_total",
			Help:      "Total number of checkpoints written",
		}),
	}

	m.registry.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.JobsCreated,
		m.JobsFinished,
		m.JobsRunning,
		m.JobDuration,
		m.Iterations,
		m.Checkpoints,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
