package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	goFactor "github.com/MrEthical07/goFactor"
	"github.com/MrEthical07/goFactor/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() goFactor.MetricsSnapshot
	AuditDropped() uint64
}

type counterDesc struct {
	id   goFactor.MetricID
	desc *prometheus.Desc
}

type histogramDesc struct {
	id   goFactor.MetricID
	desc *prometheus.Desc
}

// Collector implements prometheus.Collector over an engine's snapshot.
type Collector struct {
	source       metricsSource
	counters     []counterDesc
	histograms   []histogramDesc
	auditDropped *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector reads from engine.
func NewCollector(engine *goFactor.Engine) *Collector {
	return NewCollectorFromSource(engine)
}

// NewCollectorFromSource reads from any snapshot source.
func NewCollectorFromSource(source metricsSource) *Collector {
	c := &Collector{
		source:     source,
		counters:   make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		histograms: make([]histogramDesc, 0, len(internaldefs.HistogramDefs)),
		auditDropped: prometheus.NewDesc(
			internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, nil,
		),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{
			id:   def.ID,
			desc: prometheus.NewDesc(def.Name, def.Help, nil, nil),
		})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, histogramDesc{
			id:   def.ID,
			desc: prometheus.NewDesc(def.Name, def.Help, nil, nil),
		})
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	for _, d := range c.histograms {
		ch <- d.desc
	}
	ch <- c.auditDropped
}

// Collect emits nothing while the engine's metrics are disabled and no audit
// events were dropped.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.source == nil {
		return
	}
	snapshot := c.source.MetricsSnapshot()
	dropped := c.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return
	}

	for _, d := range c.counters {
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.CounterValue, float64(snapshot.Counters[d.id]))
	}
	for _, d := range c.histograms {
		raw, ok := snapshot.Histograms[d.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramBounds))
		for i, le := range internaldefs.HistogramBounds {
			buckets[le] = cumulative[i]
		}
		// The engine keeps bucket counts only, so the sum is reported as zero.
		ch <- prometheus.MustNewConstHistogram(d.desc, cumulative[len(cumulative)-1], 0, buckets)
	}
	ch <- prometheus.MustNewConstMetric(c.auditDropped, prometheus.CounterValue, float64(dropped))
}

// Exporter bundles a Collector with a private registry.
type Exporter struct {
	collector *Collector
	registry  *prometheus.Registry
}

// NewExporter creates an exporter for engine.
func NewExporter(engine *goFactor.Engine) *Exporter {
	return NewExporterFromSource(engine)
}

func NewExporterFromSource(source metricsSource) *Exporter {
	c := NewCollectorFromSource(source)
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	return &Exporter{collector: c, registry: reg}
}

// Collector returns the underlying collector for registration elsewhere.
func (e *Exporter) Collector() *Collector {
	return e.collector
}

// Registry returns the exporter's private registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the private registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
