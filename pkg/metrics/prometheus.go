package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector exports the ingestion metrics through a Prometheus
// registry. The metric set is fixed when the collector is built; updates to
// names it does not know, or with labels that do not match a definition,
// are dropped.
type PrometheusCollector struct {
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// PrometheusConfig configures the Prometheus collector.
type PrometheusConfig struct {
	// Registry receives the metrics. Default: a new registry that also
	// exports the Go runtime and process collectors.
	Registry *prometheus.Registry

	// Definitions is the metric set. Default: Definitions().
	Definitions []MetricDefinition
}

// NewPrometheusCollector registers every definition of cfg and returns the
// collector. A definition that conflicts with one already in the registry
// is an error.
func NewPrometheusCollector(cfg *PrometheusConfig) (*PrometheusCollector, error) {
	if cfg == nil {
		cfg = &PrometheusConfig{}
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	defs := cfg.Definitions
	if defs == nil {
		defs = Definitions()
	}

	c := &PrometheusCollector{
		registry:   registry,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
	for _, def := range defs {
		if err := c.register(def); err != nil {
			return nil, fmt.Errorf("register %s: %w", def.Name, err)
		}
	}
	return c, nil
}

func (c *PrometheusCollector) register(def MetricDefinition) error {
	var vec prometheus.Collector
	switch def.Type {
	case MetricTypeCounter:
		v := prometheus.NewCounterVec(prometheus.CounterOpts{Name: def.Name, Help: def.Help}, def.Labels)
		c.counters[def.Name], vec = v, v
	case MetricTypeGauge:
		v := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: def.Name, Help: def.Help}, def.Labels)
		c.gauges[def.Name], vec = v, v
	case MetricTypeHistogram:
		buckets := def.Buckets
		if len(buckets) == 0 {
			buckets = prometheus.DefBuckets
		}
		v := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: def.Name, Help: def.Help, Buckets: buckets}, def.Labels)
		c.histograms[def.Name], vec = v, v
	default:
		return fmt.Errorf("unsupported metric type %q", def.Type)
	}
	return c.registry.Register(vec)
}

func (c *PrometheusCollector) CounterInc(name string, labels ...string) {
	c.CounterAdd(name, 1, labels...)
}

func (c *PrometheusCollector) CounterAdd(name string, value float64, labels ...string) {
	if vec, ok := c.counters[name]; ok {
		if m, err := vec.GetMetricWith(labelSet(labels)); err == nil {
			m.Add(value)
		}
	}
}

func (c *PrometheusCollector) GaugeSet(name string, value float64, labels ...string) {
	if g := c.gauge(name, labels); g != nil {
		g.Set(value)
	}
}

func (c *PrometheusCollector) GaugeInc(name string, labels ...string) {
	if g := c.gauge(name, labels); g != nil {
		g.Inc()
	}
}

func (c *PrometheusCollector) GaugeDec(name string, labels ...string) {
	if g := c.gauge(name, labels); g != nil {
		g.Dec()
	}
}

func (c *PrometheusCollector) gauge(name string, labels []string) prometheus.Gauge {
	vec, ok := c.gauges[name]
	if !ok {
		return nil
	}
	g, err := vec.GetMetricWith(labelSet(labels))
	if err != nil {
		return nil
	}
	return g
}

func (c *PrometheusCollector) HistogramObserve(name string, value float64, labels ...string) {
	if vec, ok := c.histograms[name]; ok {
		if m, err := vec.GetMetricWith(labelSet(labels)); err == nil {
			m.Observe(value)
		}
	}
}

// Handler serves the registry in the Prometheus text or OpenMetrics format.
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// labelSet turns name/value pairs into prometheus.Labels. A trailing name
// without a value is ignored.
func labelSet(pairs []string) prometheus.Labels {
	labels := make(prometheus.Labels, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		labels[pairs[i]] = pairs[i+1]
	}
	return labels
}

var _ Collector = (*PrometheusCollector)(nil)
