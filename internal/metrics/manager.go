package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shardscope/shardscope/internal/config"
)

// Manager defines the interface for metrics management
type Manager interface {
	// HTTP Metrics
	RecordHTTPRequest(method, path, status string, duration time.Duration)

	// Explain Metrics
	RecordExplain(index, finalDecision string, duration time.Duration)
	RecordExplainError(index, reason string)

	// State Metrics
	RecordStateInstall(nodes, shards int)

	// Node Health Metrics
	UpdateNodeHealth(healthy, degraded, unavailable int)
	RecordHealthCheck(status string, duration time.Duration)

	// History Metrics
	RecordHistoryWrite(success bool)
	RecordHistoryPrune(removed int)

	// System Metrics
	UpdateSystemMetrics(cpuUsage, memoryUsage float64)

	// Export and Health
	GetMetricsHandler() http.Handler
	IsHealthy() bool

	// HTTP Middleware
	Middleware() func(http.Handler) http.Handler

	// Lifecycle
	Start(ctx context.Context) error
	Stop() error
}

// metricsManager implements the Manager interface using Prometheus
type metricsManager struct {
	config MetricsConfig

	registry *prometheus.Registry

	// HTTP Metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Explain Metrics
	explainTotal       *prometheus.CounterVec
	explainDuration    *prometheus.HistogramVec
	explainErrorsTotal *prometheus.CounterVec

	// State Metrics
	stateInstallsTotal prometheus.Counter
	stateNodes         prometheus.Gauge
	stateShards        prometheus.Gauge

	// Node Health Metrics
	nodesByHealth       *prometheus.GaugeVec
	healthChecksTotal   *prometheus.CounterVec
	healthCheckDuration prometheus.Histogram

	// History Metrics
	historyWritesTotal *prometheus.CounterVec
	historyPrunedTotal prometheus.Counter

	// System Metrics
	systemCPUUsage    prometheus.Gauge
	systemMemoryUsage prometheus.Gauge

	// Lifecycle
	started bool
	mu      sync.RWMutex
}

// MetricsConfig holds configuration for the metrics system
type MetricsConfig struct {
	Enabled   bool          `json:"enabled"`
	Path      string        `json:"path"`
	Namespace string        `json:"namespace"`
	Interval  time.Duration `json:"interval"`
}

// NewManager creates a new metrics manager
func NewManager(cfg config.MetricsConfig) Manager {
	metricsConfig := MetricsConfig{
		Enabled:   cfg.Enable,
		Path:      cfg.Path,
		Namespace: "shardscope",
		Interval:  time.Duration(cfg.Interval) * time.Second,
	}

	if !metricsConfig.Enabled {
		return &noopManager{}
	}

	if metricsConfig.Path == "" {
		metricsConfig.Path = "/metrics"
	}
	if metricsConfig.Interval == 0 {
		metricsConfig.Interval = 15 * time.Second
	}

	registry := prometheus.NewRegistry()

	manager := &metricsManager{
		config:   metricsConfig,
		registry: registry,
	}

	manager.initializeMetrics()
	return manager
}

// initializeMetrics sets up all Prometheus metrics
func (m *metricsManager) initializeMetrics() {
	namespace := m.config.Namespace

	// HTTP Metrics
	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Explain Metrics
	m.explainTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "explain",
			Name:      "requests_total",
			Help:      "Total number of allocation explain requests",
		},
		[]string{"index", "final_decision"},
	)

	m.explainDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "explain",
			Name:      "duration_seconds",
			Help:      "Allocation explain duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
		[]string{"index"},
	)

	m.explainErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "explain",
			Name:      "errors_total",
			Help:      "Total number of failed allocation explain requests",
		},
		[]string{"index", "reason"},
	)

	// State Metrics
	m.stateInstallsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "installs_total",
			Help:      "Total number of cluster state snapshots installed",
		},
	)

	m.stateNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "nodes",
			Help:      "Nodes in the current cluster state snapshot",
		},
	)

	m.stateShards = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "shards",
			Help:      "Shards in the current cluster state snapshot",
		},
	)

	// Node Health Metrics
	m.nodesByHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "nodes",
			Help:      "Registered nodes by health status",
		},
		[]string{"health"},
	)

	m.healthChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "health_checks_total",
			Help:      "Total number of node health checks",
		},
		[]string{"status"},
	)

	m.healthCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "health_check_duration_seconds",
			Help:      "Node health check duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// History Metrics
	m.historyWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "writes_total",
			Help:      "Total number of explain history writes",
		},
		[]string{"status"},
	)

	m.historyPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "pruned_total",
			Help:      "Total number of explain history entries pruned",
		},
	)

	// System Metrics
	m.systemCPUUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "cpu_usage_percent",
			Help:      "System CPU usage percentage",
		},
	)

	m.systemMemoryUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "memory_usage_percent",
			Help:      "System memory usage percentage",
		},
	)

	m.registerMetrics()
}

// registerMetrics registers all metrics with the Prometheus registry
func (m *metricsManager) registerMetrics() {
	metrics := []prometheus.Collector{
		m.httpRequestsTotal,
		m.httpRequestDuration,

		m.explainTotal,
		m.explainDuration,
		m.explainErrorsTotal,

		m.stateInstallsTotal,
		m.stateNodes,
		m.stateShards,

		m.nodesByHealth,
		m.healthChecksTotal,
		m.healthCheckDuration,

		m.historyWritesTotal,
		m.historyPrunedTotal,

		m.systemCPUUsage,
		m.systemMemoryUsage,
	}

	for _, metric := range metrics {
		m.registry.MustRegister(metric)
	}
}

func (m *metricsManager) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *metricsManager) RecordExplain(index, finalDecision string, duration time.Duration) {
	m.explainTotal.WithLabelValues(index, finalDecision).Inc()
	m.explainDuration.WithLabelValues(index).Observe(duration.Seconds())
}

func (m *metricsManager) RecordExplainError(index, reason string) {
	m.explainErrorsTotal.WithLabelValues(index, reason).Inc()
}

func (m *metricsManager) RecordStateInstall(nodes, shards int) {
	m.stateInstallsTotal.Inc()
	m.stateNodes.Set(float64(nodes))
	m.stateShards.Set(float64(shards))
}

func (m *metricsManager) UpdateNodeHealth(healthy, degraded, unavailable int) {
	m.nodesByHealth.WithLabelValues("healthy").Set(float64(healthy))
	m.nodesByHealth.WithLabelValues("degraded").Set(float64(degraded))
	m.nodesByHealth.WithLabelValues("unavailable").Set(float64(unavailable))
}

func (m *metricsManager) RecordHealthCheck(status string, duration time.Duration) {
	m.healthChecksTotal.WithLabelValues(status).Inc()
	m.healthCheckDuration.Observe(duration.Seconds())
}

func (m *metricsManager) RecordHistoryWrite(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.historyWritesTotal.WithLabelValues(status).Inc()
}

func (m *metricsManager) RecordHistoryPrune(removed int) {
	m.historyPrunedTotal.Add(float64(removed))
}

func (m *metricsManager) UpdateSystemMetrics(cpuUsage, memoryUsage float64) {
	m.systemCPUUsage.Set(cpuUsage)
	m.systemMemoryUsage.Set(memoryUsage)
}

func (m *metricsManager) GetMetricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsManager) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started
}

// Middleware records request counts and durations for every handled request.
func (m *metricsManager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriterWrapper{
				ResponseWriter: w,
				statusCode:     200,
			}

			next.ServeHTTP(wrapped, r)

			m.RecordHTTPRequest(r.Method, r.URL.Path,
				fmt.Sprintf("%d", wrapped.statusCode), time.Since(start))
		})
	}
}

func (m *metricsManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("metrics manager already started")
	}

	m.started = true
	return nil
}

func (m *metricsManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return fmt.Errorf("metrics manager not started")
	}

	m.started = false
	return nil
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// noopManager is a no-op implementation when metrics are disabled
type noopManager struct{}

func (n *noopManager) RecordHTTPRequest(method, path, status string, duration time.Duration) {}
func (n *noopManager) RecordExplain(index, finalDecision string, duration time.Duration)     {}
func (n *noopManager) RecordExplainError(index, reason string)                               {}
func (n *noopManager) RecordStateInstall(nodes, shards int)                                  {}
func (n *noopManager) UpdateNodeHealth(healthy, degraded, unavailable int)                   {}
func (n *noopManager) RecordHealthCheck(status string, duration time.Duration)               {}
func (n *noopManager) RecordHistoryWrite(success bool)                                       {}
func (n *noopManager) RecordHistoryPrune(removed int)                                        {}
func (n *noopManager) UpdateSystemMetrics(cpuUsage, memoryUsage float64)                     {}
func (n *noopManager) GetMetricsHandler() http.Handler                                       { return http.NotFoundHandler() }
func (n *noopManager) IsHealthy() bool                                                       { return true }
func (n *noopManager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return next }
}
func (n *noopManager) Start(ctx context.Context) error { return nil }
func (n *noopManager) Stop() error                     { return nil }
