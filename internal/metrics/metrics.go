// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics exposes Prometheus instruments for acquisitions, download
// jobs, progress subscribers and API requests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pubmed_retriever"

// Metrics owns a private registry. It satisfies acquire.Recorder and
// worker.Observer.
type Metrics struct {
	reg *prometheus.Registry

	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	results         *prometheus.CounterVec
	jobsRunning     prometheus.Gauge
	jobDuration     prometheus.Histogram
	subscribers     prometheus.Gauge
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers all instruments on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Candidate URL fetches by session source and outcome.",
		}, []string{"source", "outcome"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_attempt_duration_seconds",
			Help:      "Duration of candidate URL fetches.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisitions_total",
			Help:      "Acquisition results by outcome.",
		}, []string{"outcome"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "download_jobs_running",
			Help:      "Download jobs currently running.",
		}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_job_duration_seconds",
			Help:      "Wall time of download jobs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "progress_subscribers",
			Help:      "Connected progress subscribers.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.attempts, m.attemptDuration, m.results,
		m.jobsRunning, m.jobDuration, m.subscribers,
		m.requests, m.requestDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ObserveAttempt(source, outcome string, elapsed time.Duration) {
	m.attempts.WithLabelValues(source, outcome).Inc()
	m.attemptDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveResult(outcome string) {
	m.results.WithLabelValues(outcome).Inc()
}

func (m *Metrics) JobStarted() { m.jobsRunning.Inc() }

func (m *Metrics) JobFinished(elapsed time.Duration) {
	m.jobsRunning.Dec()
	m.jobDuration.Observe(elapsed.Seconds())
}

// SetSubscribers is meant for progress.Hub.OnChange.
func (m *Metrics) SetSubscribers(n int) { m.subscribers.Set(float64(n)) }

// ObserveRequest records one API request. route is the route template, not
// the raw path.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
