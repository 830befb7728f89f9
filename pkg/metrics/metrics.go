// Package metrics provides metrics collection for report ingestion.
// It includes interfaces for metric collection and a Prometheus-compatible implementation.
package metrics

import (
	"net/http"
	"sync"
	"time"
)

// =============================================================================
// Metrics Interface
// =============================================================================

// Collector is the interface for collecting and reporting metrics.
// Implement this interface to use custom metrics backends (Prometheus, StatsD, etc.).
type Collector interface {
	// Counter operations
	CounterInc(name string, labels ...string)
	CounterAdd(name string, value float64, labels ...string)

	// Gauge operations
	GaugeSet(name string, value float64, labels ...string)
	GaugeInc(name string, labels ...string)
	GaugeDec(name string, labels ...string)

	// Histogram operations
	HistogramObserve(name string, value float64, labels ...string)

	// Handler returns an HTTP handler for metrics endpoint
	Handler() http.Handler
}

// =============================================================================
// Metric Types
// =============================================================================

// MetricType represents the type of metric.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// MetricDefinition defines a metric with its metadata.
type MetricDefinition struct {
	Name    string     `json:"name"`
	Type    MetricType `json:"type"`
	Help    string     `json:"help"`
	Labels  []string   `json:"labels,omitempty"`
	Buckets []float64  `json:"buckets,omitempty"` // For histograms
}

// =============================================================================
// Default Metrics - Standard metrics for report ingestion
// =============================================================================

var (
	// Pipeline metrics
	ReportsTotal = MetricDefinition{
		Name:   "scanimport_reports_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of reports processed",
		Labels: []string{"format", "status"},
	}
	ReportDuration = MetricDefinition{
		Name:    "scanimport_report_duration_seconds",
		Type:    MetricTypeHistogram,
		Help:    "Duration of report decoding and building in seconds",
		Labels:  []string{"format"},
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}
	RecordsSkippedTotal = MetricDefinition{
		Name:   "scanimport_records_skipped_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of report records dropped by a decoder",
		Labels: []string{"format", "reason"},
	}

	// Builder metrics
	FindingsTotal = MetricDefinition{
		Name:   "scanimport_findings_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of findings handed to the inventory",
		Labels: []string{"format", "severity"},
	}
	EntitiesTotal = MetricDefinition{
		Name:   "scanimport_entities_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of inventory entities created or merged",
		Labels: []string{"entity"},
	}
	InventoryErrorsTotal = MetricDefinition{
		Name:   "scanimport_inventory_errors_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of inventory calls that failed",
		Labels: []string{"entity"},
	}

	// Pool metrics
	PoolQueueSize = MetricDefinition{
		Name:   "scanimport_pool_queue_size",
		Type:   MetricTypeGauge,
		Help:   "Current number of reports waiting in the pool queue",
		Labels: []string{},
	}
	PoolActive = MetricDefinition{
		Name:   "scanimport_pool_active",
		Type:   MetricTypeGauge,
		Help:   "Number of reports currently being processed",
		Labels: []string{},
	}

	// Inventory cache metrics
	CacheHits = MetricDefinition{
		Name:   "scanimport_inventory_cache_hits_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of natural key cache hits",
		Labels: []string{"entity"},
	}
	CacheMisses = MetricDefinition{
		Name:   "scanimport_inventory_cache_misses_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of natural key cache misses",
		Labels: []string{"entity"},
	}

	// HTTP server metrics
	HTTPRequestsTotal = MetricDefinition{
		Name:   "scanimport_http_requests_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of ingest HTTP requests served",
		Labels: []string{"method", "route", "status"},
	}
	HTTPRequestDuration = MetricDefinition{
		Name:    "scanimport_http_request_duration_seconds",
		Type:    MetricTypeHistogram,
		Help:    "Duration of ingest HTTP requests in seconds",
		Labels:  []string{"method", "route"},
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}
)

// Definitions returns every standard ingestion metric.
func Definitions() []MetricDefinition {
	return []MetricDefinition{
		ReportsTotal,
		ReportDuration,
		RecordsSkippedTotal,
		FindingsTotal,
		EntitiesTotal,
		InventoryErrorsTotal,
		PoolQueueSize,
		PoolActive,
		CacheHits,
		CacheMisses,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	}
}

// =============================================================================
// NopCollector - No-operation implementation
// =============================================================================

// NopCollector is a no-op metrics collector that discards all metrics.
// Use this when metrics are not needed.
type NopCollector struct{}

func (c *NopCollector) CounterInc(name string, labels ...string)                      {}
func (c *NopCollector) CounterAdd(name string, value float64, labels ...string)       {}
func (c *NopCollector) GaugeSet(name string, value float64, labels ...string)         {}
func (c *NopCollector) GaugeInc(name string, labels ...string)                        {}
func (c *NopCollector) GaugeDec(name string, labels ...string)                        {}
func (c *NopCollector) HistogramObserve(name string, value float64, labels ...string) {}
func (c *NopCollector) Handler() http.Handler                                         { return http.NotFoundHandler() }

// =============================================================================
// InMemoryCollector - Simple in-memory implementation for testing
// =============================================================================

// InMemoryCollector stores metrics in memory for testing purposes.
type InMemoryCollector struct {
	mu         sync.RWMutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewInMemoryCollector creates a new in-memory metrics collector.
func NewInMemoryCollector() *InMemoryCollector {
	return &InMemoryCollector{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (c *InMemoryCollector) key(name string, labels []string) string {
	key := name
	for i := 0; i < len(labels); i += 2 {
		if i+1 < len(labels) {
			key += "," + labels[i] + "=" + labels[i+1]
		}
	}
	return key
}

func (c *InMemoryCollector) CounterInc(name string, labels ...string) {
	c.CounterAdd(name, 1, labels...)
}

func (c *InMemoryCollector) CounterAdd(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.key(name, labels)
	c.counters[key] += value
}

func (c *InMemoryCollector) GaugeSet(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.key(name, labels)
	c.gauges[key] = value
}

func (c *InMemoryCollector) GaugeInc(name string, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.key(name, labels)
	c.gauges[key]++
}

func (c *InMemoryCollector) GaugeDec(name string, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.key(name, labels)
	c.gauges[key]--
}

func (c *InMemoryCollector) HistogramObserve(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.key(name, labels)
	c.histograms[key] = append(c.histograms[key], value)
}

func (c *InMemoryCollector) Handler() http.Handler {
	return http.NotFoundHandler()
}

// GetCounter returns the value of a counter.
func (c *InMemoryCollector) GetCounter(name string, labels ...string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters[c.key(name, labels)]
}

// GetGauge returns the value of a gauge.
func (c *InMemoryCollector) GetGauge(name string, labels ...string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gauges[c.key(name, labels)]
}

// GetHistogram returns all observations of a histogram.
func (c *InMemoryCollector) GetHistogram(name string, labels ...string) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.histograms[c.key(name, labels)]
}

// =============================================================================
// Timer - Helper for timing operations
// =============================================================================

// Timer is a helper for timing operations and recording to histograms.
type Timer struct {
	start     time.Time
	collector Collector
	name      string
	labels    []string
}

// NewTimer creates a new timer that will record to the given histogram.
func NewTimer(collector Collector, name string, labels ...string) *Timer {
	return &Timer{
		start:     time.Now(),
		collector: collector,
		name:      name,
		labels:    labels,
	}
}

// ObserveDuration records the duration since the timer was created.
func (t *Timer) ObserveDuration() time.Duration {
	d := time.Since(t.start)
	t.collector.HistogramObserve(t.name, d.Seconds(), t.labels...)
	return d
}

// OrNop returns collector, or a NopCollector when collector is nil.
func OrNop(collector Collector) Collector {
	if collector == nil {
		return &NopCollector{}
	}
	return collector
}

// =============================================================================
// Interface compliance
// =============================================================================

var (
	_ Collector = (*NopCollector)(nil)
	_ Collector = (*InMemoryCollector)(nil)
)
