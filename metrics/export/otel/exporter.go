package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	goFactor "github.com/MrEthical07/goFactor"
	"github.com/MrEthical07/goFactor/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goFactor.MetricsSnapshot
	AuditDropped() uint64
}

type counterBinding struct {
	id  goFactor.MetricID
	ins metric.Int64ObservableCounter
}

type histogramBinding struct {
	id      goFactor.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// OTelExporter observes an engine's snapshot once per collection cycle.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []counterBinding
	histograms   []histogramBinding
	auditDropped metric.Int64ObservableCounter
	bucketAttrs  []metric.ObserveOption
}

func NewOTelExporter(meter metric.Meter, engine *goFactor.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource registers one observable counter per engine
// counter and, per histogram, a cumulative bucket gauge labelled by "le"
// plus a count gauge. Close unregisters the callback.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source, bucketAttrs: bucketAttributes()}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, counterBinding{id: def.ID, ins: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound le (seconds)."))
		if err != nil {
			return nil, fmt.Errorf("create histogram bucket gauge %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Total samples."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s: %w", def.Name, err)
		}
		e.histograms = append(e.histograms, histogramBinding{id: def.ID, buckets: buckets, count: count})
		observables = append(observables, buckets, count)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		o.ObserveInt64(c.ins, int64(snapshot.Counters[c.id]))
	}
	for _, h := range e.histograms {
		raw, ok := snapshot.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, opt := range e.bucketAttrs {
			o.ObserveInt64(h.buckets, int64(cumulative[i]), opt)
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

func bucketAttributes() []metric.ObserveOption {
	opts := make([]metric.ObserveOption, 0, len(internaldefs.HistogramBounds)+1)
	for _, le := range internaldefs.HistogramBounds {
		opts = append(opts, metric.WithAttributes(attribute.String("le", strconv.FormatFloat(le, 'g', -1, 64))))
	}
	return append(opts, metric.WithAttributes(attribute.String("le", "+Inf")))
}

func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
