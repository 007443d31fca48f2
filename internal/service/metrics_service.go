package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Generation outcomes used as the "outcome" metric label.
const (
	OutcomeCompleted  = "completed"
	OutcomeConflicts  = "completed_with_conflicts"
	OutcomeDryRun     = "dry_run"
	OutcomeCanceled   = "canceled"
	OutcomeStorage    = "storage_error"
	OutcomeFailed     = "failed"
	OutcomeInProgress = "in_progress"
)

// MetricsService owns the Prometheus registry for HTTP, cache and generation metrics.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheLookups    *prometheus.CounterVec
	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	placements      prometheus.Counter
	conflicts       *prometheus.CounterVec
	issues          prometheus.Counter
	loadDuration    prometheus.Histogram
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "timetable_cache_latency_seconds",
			Help:    "Latency of timetable cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_cache_lookups_total",
			Help: "Timetable cache lookups by result",
		}, []string{"result"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_generation_runs_total",
			Help: "Generation runs by outcome",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "timetable_generation_duration_seconds",
			Help:    "Wall time of generation runs, planning plus materialization",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		placements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timetable_placements_total",
			Help: "Session-units placed across all runs",
		}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_conflicts_total",
			Help: "Unplaceable session-units by reason",
		}, []string{"reason"}),
		issues: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timetable_precondition_issues_total",
			Help: "Precondition issues raised while loading or checking reference data",
		}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "timetable_registry_load_seconds",
			Help:    "Time to fetch the registry snapshot",
			Buckets: prometheus.DefBuckets,
		}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(m.requestDuration, m.requestTotal, m.cacheLatency, m.cacheLookups, m.runs, m.runDuration,
		m.placements, m.conflicts, m.issues, m.loadDuration, goroutines)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Registry exposes the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	label := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, label).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, label).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// ObserveRegistryLoad records the snapshot fetch time.
func (m *MetricsService) ObserveRegistryLoad(duration time.Duration) {
	if m == nil {
		return
	}
	m.loadDuration.Observe(duration.Seconds())
}

// ObserveGeneration records a finished run. conflictsByReason may be nil for failed runs.
func (m *MetricsService) ObserveGeneration(outcome string, duration time.Duration, placed, issues int, conflictsByReason map[string]int) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(duration.Seconds())
	m.placements.Add(float64(placed))
	m.issues.Add(float64(issues))
	for reason, n := range conflictsByReason {
		m.conflicts.WithLabelValues(reason).Add(float64(n))
	}
}
