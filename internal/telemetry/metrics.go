// Package telemetry exposes Prometheus metrics for the explanation engine.
package telemetry

import (
	"net/http"
	"time"

	"github.com/finxai/xai/internal/cache"
	"github.com/finxai/xai/internal/jobs"
	"github.com/finxai/xai/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
)

const namespace = "xai"

// Metrics holds the engine's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
	CacheBuilds   *prometheus.HistogramVec
	Requests      *prometheus.HistogramVec
	JobTransition *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	BreakerState  *prometheus.GaugeVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "explainer_cache_hits_total",
				Help:      "Explainer cache lookups served from memory",
			},
			[]string{"method"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "explainer_cache_misses_total",
				Help:      "Explainer cache lookups that required a build",
			},
			[]string{"method"},
		),
		CacheBuilds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "explainer_build_duration_seconds",
				Help:      "Duration of explainer state construction",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "result"},
		),
		Requests: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of orchestrator operations by outcome",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation", "outcome"},
		),
		JobTransition: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Global explanation job transitions by status",
			},
			[]string{"status"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Run time of finished global explanation jobs",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
			},
			[]string{"status"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "artifact_breaker_state",
				Help:      "Artifact store circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"store"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CacheHits,
		m.CacheMisses,
		m.CacheBuilds,
		m.Requests,
		m.JobTransition,
		m.JobDuration,
		m.BreakerState,
	)
	return m
}

// Registry returns the registry holding all collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CacheObserver returns explainer cache callbacks that feed the cache
// collectors.
func (m *Metrics) CacheObserver() cache.Observer {
	return cache.Observer{
		OnHit:  func(method models.Method) { m.CacheHits.WithLabelValues(string(method)).Inc() },
		OnMiss: func(method models.Method) { m.CacheMisses.WithLabelValues(string(method)).Inc() },
		OnBuild: func(method models.Method, d time.Duration, err error) {
			m.CacheBuilds.WithLabelValues(string(method), result(err)).Observe(d.Seconds())
		},
	}
}

// ObserveRequest records one orchestrator operation. outcome is "ok" or an
// error kind.
func (m *Metrics) ObserveRequest(operation, outcome string, d time.Duration) {
	m.Requests.WithLabelValues(operation, outcome).Observe(d.Seconds())
}

// JobListener counts job transitions and the run time of finished jobs.
func (m *Metrics) JobListener() jobs.Listener {
	return func(job *jobs.Job) {
		m.JobTransition.WithLabelValues(string(job.Status)).Inc()
		if job.Status.Terminal() && job.StartedAt != nil {
			m.JobDuration.WithLabelValues(string(job.Status)).Observe(job.Duration().Seconds())
		}
	}
}

// WatchQueue exports the number of unfinished jobs.
func (m *Metrics) WatchQueue(pending func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Global explanation jobs pending or running",
		},
		func() float64 { return float64(pending()) },
	))
}

// ObserveBreaker records a circuit breaker transition. It matches the
// artifact.BreakerConfig.OnStateChange signature.
func (m *Metrics) ObserveBreaker(name string, _, to gobreaker.State) {
	m.BreakerState.WithLabelValues(name).Set(float64(to))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
