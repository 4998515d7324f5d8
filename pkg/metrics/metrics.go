// Package metrics holds the Prometheus collectors exported by pairlab.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all pairlab metrics. A nil *Registry is valid and records nothing.
type Registry struct {
	reg *prometheus.Registry

	// Pipeline
	RunsTotal     *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
	StageDuration *prometheus.HistogramVec
	TradesTotal   *prometheus.CounterVec
	ActiveRuns    prometheus.Gauge

	// Stationarity collaborator
	StationarityCalls   *prometheus.CounterVec
	StationarityLatency *prometheus.HistogramVec
	CacheHits           prometheus.Counter
	CacheMisses         prometheus.Counter

	// Transport
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	QueueJobs    *prometheus.CounterVec
	QueueDepth   prometheus.Gauge
}

// NewRegistry creates a registry with every pairlab collector plus the Go and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairlab_runs_total",
				Help: "Total number of analysis runs by model and outcome",
			},
			[]string{"model", "outcome"},
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pairlab_run_duration_seconds",
				Help:    "Duration of a full analysis run in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"model"},
		),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pairlab_stage_duration_seconds",
				Help:    "Duration of each pipeline stage in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"stage"},
		),

		TradesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairlab_trades_total",
				Help: "Total number of simulated trades by model and direction",
			},
			[]string{"model", "direction"},
		),

		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pairlab_active_runs",
				Help: "Number of analysis runs currently executing",
			},
		),

		StationarityCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairlab_stationarity_calls_total",
				Help: "Stationarity test calls by source and outcome",
			},
			[]string{"source", "outcome"},
		),

		StationarityLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pairlab_stationarity_latency_seconds",
				Help:    "Latency of stationarity test calls in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"source"},
		),

		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pairlab_stationarity_cache_hits_total",
				Help: "Stationarity results served from cache",
			},
		),

		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pairlab_stationarity_cache_misses_total",
				Help: "Stationarity cache lookups that missed",
			},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairlab_http_requests_total",
				Help: "HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "code"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pairlab_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		QueueJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairlab_queue_jobs_total",
				Help: "Jobs processed by the scheduler and queue workers by source and outcome",
			},
			[]string{"source", "outcome"},
		),

		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pairlab_queue_depth",
				Help: "Jobs waiting for a worker slot",
			},
		),
	}

	r.reg.MustRegister(
		r.RunsTotal, r.RunDuration, r.StageDuration, r.TradesTotal, r.ActiveRuns,
		r.StationarityCalls, r.StationarityLatency, r.CacheHits, r.CacheMisses,
		r.HTTPRequests, r.HTTPDuration, r.QueueJobs, r.QueueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

// Handler returns the /metrics handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Gatherer(), promhttp.HandlerOpts{})
}

// ObserveRun records a finished run.
func (r *Registry) ObserveRun(model, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.RunsTotal.WithLabelValues(model, outcome).Inc()
	r.RunDuration.WithLabelValues(model).Observe(d.Seconds())
}

// ObserveStage records the duration of one pipeline stage.
func (r *Registry) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// AddTrades counts simulated trades.
func (r *Registry) AddTrades(model, direction string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.TradesTotal.WithLabelValues(model, direction).Add(float64(n))
}

// RunStarted increments the active run gauge and returns the matching decrement.
func (r *Registry) RunStarted() func() {
	if r == nil {
		return func() {}
	}
	r.ActiveRuns.Inc()
	return r.ActiveRuns.Dec
}

// ObserveStationarity records a stationarity call.
func (r *Registry) ObserveStationarity(source, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.StationarityCalls.WithLabelValues(source, outcome).Inc()
	r.StationarityLatency.WithLabelValues(source).Observe(d.Seconds())
}

// CacheLookup records a stationarity cache hit or miss.
func (r *Registry) CacheLookup(hit bool) {
	if r == nil {
		return
	}
	if hit {
		r.CacheHits.Inc()
	} else {
		r.CacheMisses.Inc()
	}
}

// ObserveHTTP records one HTTP request.
func (r *Registry) ObserveHTTP(route, method, code string, d time.Duration) {
	if r == nil {
		return
	}
	r.HTTPRequests.WithLabelValues(route, method, code).Inc()
	r.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveJob records a processed job.
func (r *Registry) ObserveJob(source, outcome string) {
	if r == nil {
		return
	}
	r.QueueJobs.WithLabelValues(source, outcome).Inc()
}

// SetQueueDepth sets the number of waiting jobs.
func (r *Registry) SetQueueDepth(n int) {
	if r == nil {
		return
	}
	r.QueueDepth.Set(float64(n))
}
