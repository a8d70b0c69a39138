package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus collectors for the directive engine.
// A nil or disabled Metrics is safe to call; every method no-ops.
type Metrics struct {
	config MetricsConfig

	directivesStarted   *prometheus.CounterVec
	directivesCompleted *prometheus.CounterVec
	directiveDuration   *prometheus.HistogramVec

	operationsExecuted *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	operationsSkipped  *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	activeExecutions prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates the collectors. A disabled config returns a no-op
// instance.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		directivesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "directives_started_total",
				Help:      "Total number of directive executions started",
			},
			[]string{"tool", "mode"},
		),
		directivesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "directives_completed_total",
				Help:      "Total number of directive executions completed",
			},
			[]string{"tool", "status"},
		),
		directiveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "directive_duration_seconds",
				Help:      "Duration of directive executions in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool", "status"},
		),
		operationsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_executed_total",
				Help:      "Total number of operations executed",
			},
			[]string{"op", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operation executions in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		operationsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_skipped_total",
				Help:      "Total number of operations skipped by a false condition",
			},
			[]string{"op"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"granularity"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"granularity"},
		),
		activeExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_executions",
				Help:      "Number of directive executions currently running",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.directivesStarted,
		m.directivesCompleted,
		m.directiveDuration,
		m.operationsExecuted,
		m.operationDuration,
		m.operationsSkipped,
		m.cacheHits,
		m.cacheMisses,
		m.activeExecutions,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Registry exposes the Prometheus registry for scraping handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) enabled() bool {
	return m != nil && m.config.Enabled
}

// DirectiveStarted records the start of a directive execution.
func (m *Metrics) DirectiveStarted(tool, mode string) {
	if !m.enabled() {
		return
	}
	m.directivesStarted.WithLabelValues(tool, mode).Inc()
	m.activeExecutions.Inc()
}

// DirectiveCompleted records the end of a directive execution.
func (m *Metrics) DirectiveCompleted(tool, status string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.directivesCompleted.WithLabelValues(tool, status).Inc()
	m.directiveDuration.WithLabelValues(tool, status).Observe(duration.Seconds())
	m.activeExecutions.Dec()
}

// OperationExecuted records one operation run.
func (m *Metrics) OperationExecuted(op, status string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.operationsExecuted.WithLabelValues(op, status).Inc()
	m.operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// OperationSkipped records an operation skipped by a false condition.
func (m *Metrics) OperationSkipped(op string) {
	if !m.enabled() {
		return
	}
	m.operationsSkipped.WithLabelValues(op).Inc()
}

// CacheHit records a cache hit at the given granularity
// ("directive" or "operation").
func (m *Metrics) CacheHit(granularity string) {
	if !m.enabled() {
		return
	}
	m.cacheHits.WithLabelValues(granularity).Inc()
}

// CacheMiss records a cache miss at the given granularity.
func (m *Metrics) CacheMiss(granularity string) {
	if !m.enabled() {
		return
	}
	m.cacheMisses.WithLabelValues(granularity).Inc()
}
